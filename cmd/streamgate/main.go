// streamgate is a TCP gateway that streams LLM completions for plain-text transcripts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"streamgate/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("streamgate"),
		kong.Description("Stream LLM completions for chat transcripts over TCP"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Info()},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
