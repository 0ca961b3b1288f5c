// Package logger implements a per-race in-memory log buffer for imports.
//
// Detailed lines are buffered while a race is being imported.  On failure the
// buffer is replayed followed by the final error, so the log shows the whole
// story only when something went wrong.  On success the buffer is dropped and
// one short line is printed.
//
// Thread safety comes from a dedicated logger goroutine fed through a command
// channel; no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act     action
	race    string
	message string    // for Append
	detail  string    // for Success: what was imported
	err     error     // for FlushErr
	when    time.Time // timestamp, kept for ordering if ever needed
}

var ch = make(chan cmd, 128) // buffered to absorb import bursts

// Begin enables buffering for one race import.
func Begin(race string) { ch <- cmd{act: actBegin, race: race, when: time.Now()} }

// Append adds one detailed log line to the race buffer.
func Append(race, msg string) {
	ch <- cmd{act: actAppend, race: race, message: msg, when: time.Now()}
}

// Success drops the buffer and prints one short line.
func Success(race, detail string) {
	ch <- cmd{act: actSuccess, race: race, detail: detail, when: time.Now()}
}

// FlushError replays the buffered lines followed by the final error.
func FlushError(race string, err error) {
	ch <- cmd{act: actFlushErr, race: race, err: err, when: time.Now()}
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.race] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.race]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer → print immediately
			}

		case actSuccess:
			log.Printf("[%s][Import] ✔ %s", c.race, c.detail)
			delete(buffers, c.race)

		case actFlushErr:
			if b := buffers[c.race]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.race)
			}
			log.Printf("[%s][ERROR] %v", c.race, c.err)
		}
	}
}
