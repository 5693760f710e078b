// Command protocheck validates stream messages. It reads json lines from a
// file or stdin, or the frames of a journaled run, and prints the canonical
// encoding of each message or the reason it does not decode.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"lasersell-stream/internal/journal"
	"lasersell-stream/internal/journal/sqlite"
	"lasersell-stream/internal/proto"
)

type checker struct {
	side string
	opts proto.DecodeOptions
	out  io.Writer

	checked int
	failed  int
}

func main() {
	side := flag.String("side", "auto", "message side: client, server or auto")
	strict := flag.Bool("strict", false, "reject market contexts with extra payloads")
	journalPath := flag.String("journal", "", "sqlite journal to check instead of json lines")
	runID := flag.String("run", "", "journal run id (default: every run)")
	flag.Parse()

	c := &checker{side: *side, opts: proto.DecodeOptions{StrictMarketContext: *strict}, out: os.Stdout}
	if c.side != "auto" && c.side != "client" && c.side != "server" {
		fmt.Fprintf(os.Stderr, "invalid -side %q\n", c.side)
		os.Exit(2)
	}

	var err error
	switch {
	case *journalPath != "":
		err = c.checkJournal(context.Background(), *journalPath, *runID)
	case flag.NArg() > 0:
		for _, path := range flag.Args() {
			if err = c.checkFile(path); err != nil {
				break
			}
		}
	default:
		err = c.checkLines("stdin", os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "protocheck: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "%d checked, %d failed\n", c.checked, c.failed)
	if c.failed > 0 {
		os.Exit(1)
	}
}

func (c *checker) checkFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return c.checkLines(path, file)
}

func (c *checker) checkLines(name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		c.check(fmt.Sprintf("%s:%d", name, line), c.side, text)
	}
	return scanner.Err()
}

func (c *checker) checkJournal(ctx context.Context, path, runID string) error {
	store, err := sqlite.New(path)
	if err != nil {
		return err
	}
	defer store.Close()
	ids := []string{runID}
	if runID == "" {
		runs, err := journal.Runs(ctx, store)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, run := range runs {
			ids = append(ids, run.ID)
		}
	}
	for _, id := range ids {
		entries, err := journal.Replay(ctx, store, id)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			side := "server"
			if entry.Direction == proto.ClientToServer {
				side = "client"
			}
			c.check(fmt.Sprintf("%s/%d", id, entry.Seq), side, []byte(entry.Text))
		}
	}
	return nil
}

// check decodes one message and prints its canonical re-encoding.
func (c *checker) check(where, side string, data []byte) {
	c.checked++
	canonical, msgType, err := canonicalize(side, data, c.opts)
	if err != nil {
		c.failed++
		fmt.Fprintf(c.out, "FAIL %s: %v\n", where, err)
		return
	}
	fmt.Fprintf(c.out, "ok   %s %s %s\n", where, msgType, canonical)
}

func canonicalize(side string, data []byte, opts proto.DecodeOptions) ([]byte, string, error) {
	if side == "auto" {
		_, dir, err := proto.PeekType(data)
		if err != nil {
			return nil, "", err
		}
		side = "server"
		if dir == proto.ClientToServer {
			side = "client"
		}
	}
	switch side {
	case "client":
		msg, err := proto.DecodeClientMessage(data)
		if err != nil {
			return nil, "", err
		}
		out, err := proto.EncodeClientMessage(msg)
		return out, msg.Type(), err
	case "server":
		msg, err := proto.DecodeServerMessageWith(data, opts)
		if err != nil {
			return nil, "", err
		}
		out, err := proto.EncodeServerMessage(msg)
		return out, msg.Type(), err
	}
	return nil, "", errors.New("unknown side " + side)
}
