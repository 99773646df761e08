package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/render"
	"github.com/corymhall/cargo-appraiser/rpc"
	"github.com/corymhall/cargo-appraiser/server"
	"github.com/spf13/cobra"
)

var (
	flagRenderer           string
	flagStdio              bool
	flagClientCapabilities []string
	flagCargoPath          string
)

func main() {
	defer panicHandler()

	cmd := &cobra.Command{
		Use:           "cargo-appraiser",
		Short:         "LSP server that appraises the dependencies in Cargo.toml files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVar(&flagRenderer, "renderer", string(render.KindInlayHint),
		`how dependency state reaches the editor: "vscode" (decorations) or "inlayHint"`)
	cmd.Flags().BoolVar(&flagStdio, "stdio", true, "use stdio transport (the only transport)")
	cmd.Flags().StringSliceVar(&flagClientCapabilities, "client-capabilities", nil,
		`custom capabilities of the editor extension, e.g. "readFile"`)
	cmd.Flags().StringVar(&flagCargoPath, "cargo-path", "", "path to the cargo binary (defaults to $PATH lookup)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	kind, err := render.ParseKind(flagRenderer)
	if err != nil {
		return err
	}
	if !flagStdio {
		return fmt.Errorf("only the stdio transport is supported")
	}

	ctx := context.Background()
	logger := getLogger()
	stream := rpc.NewHeaderStream(os.Stdin, os.Stdout)
	conn := rpc.NewConn(stream, logger)
	client := lsp.ClientDispatcher(conn)
	srv, err := server.New(logger, client, server.Options{
		Renderer:           kind,
		CargoPath:          flagCargoPath,
		ClientCapabilities: flagClientCapabilities,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Println("Error shutting down server:", err)
		}
	}()
	ctx = lsp.WithClient(ctx, client)
	conn.Run(ctx, lsp.ServerHandler(srv, rpc.MethodNotFound))
	return nil
}

func panicHandler() {
	if panicPayload := recover(); panicPayload != nil {
		stack := string(debug.Stack())
		fmt.Fprintln(os.Stderr, "================================================================================")
		fmt.Fprintln(os.Stderr, "cargo-appraiser encountered a fatal error. This is a bug!")
		fmt.Fprintln(os.Stderr, "We would appreciate a report: https://github.com/corymhall/cargo-appraiser/issues/")
		fmt.Fprintln(os.Stderr, "Please provide all of the below text in your report.")
		fmt.Fprintln(os.Stderr, "================================================================================")
		fmt.Fprintf(os.Stderr, "Go Version:           %s\n", runtime.Version())
		fmt.Fprintf(os.Stderr, "Go Compiler:          %s\n", runtime.Compiler)
		fmt.Fprintf(os.Stderr, "Architecture:         %s\n", runtime.GOARCH)
		fmt.Fprintf(os.Stderr, "Operating System:     %s\n", runtime.GOOS)
		fmt.Fprintf(os.Stderr, "Panic:                %s\n\n", panicPayload)
		fmt.Fprintln(os.Stderr, stack)
		os.Exit(1)
	}
}

// getLogger writes server internals to the file named by
// CARGO_APPRAISER_LOG. Without it the log is discarded; stdout belongs to
// the protocol and stderr to the panic handler.
func getLogger() *log.Logger {
	filename := os.Getenv("CARGO_APPRAISER_LOG")
	if filename == "" {
		return log.New(io.Discard, "", 0)
	}
	logfile, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", filename, err)
		return log.New(io.Discard, "", 0)
	}
	return log.New(logfile, "[cargo-appraiser]", log.Ldate|log.Ltime|log.Lshortfile)
}
