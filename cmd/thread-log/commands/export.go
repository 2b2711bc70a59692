package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/threadkit/threadkit-go/pkg/log"
)

// RunExport exports the log file to the specified format, writing to output
// or to stdout when output is empty.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for event, err := range reader.All() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

// csvHeader names the columns written by exportCSV. Columns that do not
// apply to an event are left empty.
var csvHeader = []string{
	"timestamp", "instance_id", "ext_address", "direction", "layer", "category", "peer",
	"type", "size", "channel", "rssi", "tx_result", "entity", "state", "detail",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for event, err := range reader.All() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	row := []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.InstanceID,
		event.ExtAddress,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.Peer,
	}
	var typ, size, channel, rssi, txResult, entity, state, detail string
	switch {
	case event.Frame != nil:
		f := event.Frame
		typ, size = "frame", strconv.Itoa(f.Size)
		if f.Channel != 0 {
			channel = strconv.Itoa(int(f.Channel))
		}
		if event.Direction == log.DirectionIn {
			rssi = strconv.Itoa(int(f.RSSI))
		}
		txResult = f.TxResult
	case event.Datagram != nil:
		d := event.Datagram
		typ, size = "datagram", strconv.Itoa(d.Length)
		detail = d.Local + " <-> " + d.Remote
	case event.StateChange != nil:
		sc := event.StateChange
		typ, entity = "state", sc.Entity.String()
		state = sc.NewState
		if sc.OldState != "" {
			state = sc.OldState + "->" + sc.NewState
		}
		detail = sc.Name
		if sc.Reason != "" {
			detail = strings.TrimSpace(detail + " " + sc.Reason)
		}
	case event.Error != nil:
		typ, detail = "error", event.Error.Message
		if event.Error.Context != "" {
			detail = event.Error.Context + ": " + detail
		}
	default:
		typ = "unknown"
	}
	return append(row, typ, size, channel, rssi, txResult, entity, state, detail)
}
