package main

import (
	"PhotoUploader/internal/logging"
	"PhotoUploader/pkg/uploader"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

func main() {
	opts := uploader.Options{}
	pflag.StringVarP(&opts.Server, "server", "s", "http://localhost:3000", "server base URL")
	pflag.StringVarP(&opts.Token, "token", "t", os.Getenv("UPLOADER_TOKEN"), "upload token")
	pflag.StringVarP(&opts.Encoding, "encoding", "e", "", "compress the body: zstd, gzip, deflate, s2, snappy or lz4")
	pflag.BoolVar(&opts.FixExtensions, "fix-extensions", false, "append the detected file type's extension when missing")
	pflag.IntVar(&opts.RetryMax, "retries", 3, "retries for failed uploads")
	pflag.DurationVar(&opts.Timeout, "timeout", 30*time.Minute, "timeout per attempt")
	logLevel := pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] FILE...\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		logging.GlobalLogger.Fatal(err.Error())
	}
	logging.GlobalLogger.SetLevel(level)

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	if opts.Token == "" {
		logging.GlobalLogger.Fatal("A token is required (--token or UPLOADER_TOKEN)")
	}

	files, err := uploader.Prepare(pflag.Args(), opts.FixExtensions)
	if err != nil {
		logging.GlobalLogger.Fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := uploader.New(opts).Upload(ctx, files)
	if err != nil {
		logging.GlobalLogger.Fatal("Upload failed: " + err.Error())
	}

	for _, f := range out.Files {
		fmt.Printf("%-40s %10s\n", f.Name, humanize.IBytes(f.Written))
	}
	fmt.Printf("upload %s: %s received\n", out.UploadID, humanize.IBytes(out.BytesReceived))
	if out.Truncated {
		fmt.Printf("warning: server received %s of %s\n", humanize.IBytes(out.BytesReceived), humanize.IBytes(out.BytesExpected))
		os.Exit(1)
	}
}
