// fadecalc 打印配置中各场景推导出的淡入淡出时长、偏移和混音区大小。
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/liuscraft/crossfade/internal/config"
	"github.com/liuscraft/crossfade/internal/fade"
)

// row 单个场景的推导结果
type row struct {
	Scenario   string `json:"scenario"`
	Type       string `json:"type"`
	OutLenMs   int    `json:"fade_out_ms"`
	OutVolume  int    `json:"fade_out_volume"`
	OffsetMs   int    `json:"offset_ms"`
	InLenMs    int    `json:"fade_in_ms"`
	InVolume   int    `json:"fade_in_volume"`
	SpanMs     int    `json:"span_ms"`
	Encoded    string `json:"encoded"`
	FlushFirst bool   `json:"flush"`
}

type report struct {
	Rows        []row `json:"scenarios"`
	MixSizeMs   int   `json:"mix_size_ms"`
	SyncSizeMs  int   `json:"sync_size_ms"`
	PreloadMs   int   `json:"preload_ms"`
	GapTrailMs  int   `json:"gap_trail_ms"`
	OutputRate  int   `json:"output_rate"`
	BufferBytes int   `json:"buffer_bytes"`
}

func buildReport(cfg *config.GlobalConfig, only string) (report, error) {
	r := report{
		MixSizeMs:  cfg.MixSize(),
		SyncSizeMs: cfg.SyncSizeMs,
		PreloadMs:  cfg.PreloadMs,
		GapTrailMs: cfg.GapTrailLenMs(),
		OutputRate: cfg.Output.Rate,
	}
	bytesPerMs := cfg.Output.Rate * 4
	r.BufferBytes = (r.MixSizeMs + r.SyncSizeMs + r.PreloadMs) * bytesPerMs / 1000 &^ 3

	for s := fade.Scenario(0); s < fade.NumScenarios; s++ {
		if only != "" && !strings.EqualFold(only, s.String()) {
			continue
		}
		fc := cfg.FadeConfig(s)
		r.Rows = append(r.Rows, row{
			Scenario:   s.String(),
			Type:       fc.Type.String(),
			OutLenMs:   fc.FadeOutLen(),
			OutVolume:  fc.FadeOutVolume(),
			OffsetMs:   fc.Offset(),
			InLenMs:    fc.FadeInLen(),
			InVolume:   fc.FadeInVolume(),
			SpanMs:     fc.Span(),
			Encoded:    fc.String(),
			FlushFirst: fc.Flush,
		})
	}
	if len(r.Rows) == 0 {
		return r, fmt.Errorf("unknown scenario %q", only)
	}
	return r, nil
}

func (r report) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tTYPE\tOUT\tOUT VOL\tOFFSET\tIN\tIN VOL\tSPAN\tFLUSH")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d%%\t%d\t%d\t%d%%\t%d\t%v\n",
			row.Scenario, row.Type, row.OutLenMs, row.OutVolume, row.OffsetMs,
			row.InLenMs, row.InVolume, row.SpanMs, row.FlushFirst)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nmix %d ms (trailing gap %d ms), sync %d ms, preload %d ms: %d bytes at %d Hz\n",
		r.MixSizeMs, r.GapTrailMs, r.SyncSizeMs, r.PreloadMs, r.BufferBytes, r.OutputRate)
	return err
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	scenario := flag.String("scenario", "", "only print this scenario")
	asJSON := flag.Bool("json", false, "print JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	r, err := buildReport(cfg, *scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	} else {
		err = r.writeTable(os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
