// xfplay 按顺序播放音频文件，曲目之间由交叉淡化引擎完成过渡。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/liuscraft/crossfade/internal/config"
	"github.com/liuscraft/crossfade/internal/engine"
	"github.com/liuscraft/crossfade/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	deviceName := flag.String("device", "", "output device: null, wav, portaudio, websocket")
	outPath := flag.String("out", "", "output file for the wav device (%d expands to a sequence number)")
	url := flag.String("url", "", "websocket sink URL")
	effectName := flag.String("effect", "", "pre-mix effect name")
	volume := flag.Int("volume", -1, "initial volume percent")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: xfplay [flags] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *deviceName != "" {
		cfg.Output.Device = strings.ToLower(*deviceName)
	}
	if *outPath != "" {
		cfg.Output.WAVPath = *outPath
	}
	if *url != "" {
		cfg.Output.URL = *url
	}
	if *effectName != "" {
		cfg.Effect.Name = *effectName
		cfg.Effect.Enable = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Infof("xfplay: %d files, device %s, output %d Hz, mix buffer %d ms",
		len(files), cfg.Output.Device, cfg.Output.Rate, cfg.MixSize())

	list := newPlaylist(files)
	eng := engine.New(cfg, newDevice(cfg), list)
	if *volume >= 0 {
		eng.SetVolume(*volume, *volume)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Infof("xfplay: interrupted, fading out")
		cancel()
	}()

	p := &player{eng: eng, list: list, poll: pollInterval}
	if err := p.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Errorf("xfplay: %v", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Infof("xfplay: done")
}
