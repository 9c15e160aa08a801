// Command checksum-verify replays a JSON-lines export of persisted
// MetricPoints and confirms each row's stored checksum still matches its
// recomputed canonical-JSON SHA-256 digest — the same "replay and compare
// digests" shape the ledger side uses for its event-log hash chain,
// retargeted at MetricPoint integrity instead of transaction integrity.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/turphai/boomwatch/internal/domain"
)

func main() {
	inPath := flag.String("in", "", "JSON-lines file exported from a MetricPoint store")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(2)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lineNo, rows int
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var point domain.MetricPoint
		if err := json.Unmarshal(line, &point); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: invalid json: %v\n", lineNo, err)
			os.Exit(2)
		}

		recomputed, err := domain.Checksum(domain.ChecksumPayload{
			Value:     point.Value,
			Composite: point.Composite,
			Metadata:  point.Metadata,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: checksum: %v\n", lineNo, err)
			os.Exit(2)
		}

		if recomputed != point.Checksum {
			fmt.Fprintf(os.Stderr, "FAIL: checksum mismatch at line=%d data_source=%s metric_name=%s\nexpected=%s\ngot=%s\n",
				lineNo, point.DataSource, point.MetricName, point.Checksum, recomputed)
			os.Exit(1)
		}
		rows++
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		fmt.Fprintln(os.Stderr, "scan:", err)
		os.Exit(2)
	}

	if rows == 0 {
		fmt.Fprintln(os.Stderr, "FAIL: empty export")
		os.Exit(1)
	}

	fmt.Printf("OK: %d metric points verified\n", rows)
}
