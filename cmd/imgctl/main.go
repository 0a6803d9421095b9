// Command imgctl talks to a running worker pool.
//
// Usage:
//
//	imgctl generate --prompt "a red fox" --seed 42 --out fox.png
//	imgctl workers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/imgpool/client"
	"github.com/arloliu/imgpool/internal/appconfig"
	"github.com/arloliu/imgpool/internal/presence"
	"github.com/arloliu/imgpool/job"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "workers":
		err = runWorkers(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		failColor.Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: imgctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  generate   submit one job and write the image to a file")
	fmt.Fprintln(w, "  workers    list live workers from the presence registry")
}

func connect(addr string) (*nats.Conn, error) {
	if addr == "" {
		addr = os.Getenv("IMGPOOL_NATS_URL")
	}
	if addr == "" {
		addr = appconfig.DefaultNATSURL
	}

	nc, err := nats.Connect(addr, nats.Name("imgctl"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	return nc, nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	addr := fs.String("nats_server_address", "", "NATS server address")
	subject := fs.String("subject", job.DefaultSubject, "Job subject")
	seed := fs.Int64("seed", 0, "Random seed")
	prompt := fs.String("prompt", "", "Text prompt (required)")
	steps := fs.Int("steps", 4, "Number of inference steps")
	height := fs.Int("height", 512, "Image height in pixels")
	width := fs.Int("width", 512, "Image width in pixels")
	out := fs.String("out", "", "Output file (default image-<seed> with an extension from the media type)")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for the reply")
	_ = fs.Parse(args)

	if *prompt == "" {
		return errors.New("--prompt is required")
	}

	nc, err := connect(*addr)
	if err != nil {
		return err
	}
	defer nc.Close()

	c, err := client.New(nc, client.WithSubject(*subject))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	res, err := c.Generate(ctx, job.Request{Seed: *seed, Prompt: *prompt, NumSteps: *steps, Height: *height, Width: *width})
	if err != nil {
		return err
	}
	if !res.Success {
		failColor.Print("FAILED")
		if res.Reason != "" {
			fmt.Printf(" (%s)", res.Reason)
		}
		fmt.Println()

		return client.ErrJobFailed
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("image-%d%s", *seed, extension(res.MediaType))
	}
	if err := os.WriteFile(path, res.Payload, 0o644); err != nil { //nolint:gosec // output file is meant to be readable
		return fmt.Errorf("write image: %w", err)
	}

	okColor.Print("OK")
	fmt.Printf(" %s (%s, %d bytes) ", path, res.MediaType, len(res.Payload))
	dimColor.Printf("in %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func extension(mediaType string) string {
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	for _, e := range exts {
		if e == ".png" || e == ".jpg" || e == ".webp" {
			return e
		}
	}

	return exts[0]
}

func runWorkers(args []string) error {
	fs := flag.NewFlagSet("workers", flag.ExitOnError)
	addr := fs.String("nats_server_address", "", "NATS server address")
	bucket := fs.String("bucket", "imgpool-workers", "Presence KV bucket")
	prefix := fs.String("prefix", "worker", "Presence key prefix")
	_ = fs.Parse(args)

	nc, err := connect(*addr)
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	kv, err := js.KeyValue(ctx, *bucket)
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			return fmt.Errorf("presence bucket %q not found; are workers running with presence enabled?", *bucket)
		}

		return err
	}

	records, err := presence.List(ctx, kv, *prefix)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		dimColor.Println("no live workers")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHOST\tSTATE\tIN FLIGHT\tHANDLED\tUPTIME\tLAST SEEN")
	for _, r := range records {
		state := r.State
		switch strings.ToLower(state) {
		case "running":
			state = okColor.Sprint(state)
		case "draining":
			state = color.YellowString(state)
		default:
			state = failColor.Sprint(state)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s ago\n",
			r.ID, r.Hostname, state, r.InFlight, r.JobsHandled,
			time.Since(r.StartedAt).Round(time.Second),
			time.Since(r.UpdatedAt).Round(time.Millisecond),
		)
	}

	return tw.Flush()
}
