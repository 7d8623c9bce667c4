// syncx is the client CLI: create an account, upload a directory as a
// committed batch, download files with proof verification, and print
// the stored commitment root.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/syncx-labs/syncx/pkg/client"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

func usage(stderr io.Writer) {
	_, _ = fmt.Fprintln(stderr, `Usage: syncx <command> [flags]

Commands:
  create_account -p <password>     register and store the identity
  login          -p <password>     re-issue an expired token
  upload         -d <dir>          pack, commit and upload a directory
  download       -f <file> -d <dir> fetch a file and verify its proof
  merkleroot                       print the stored commitment root

The server address comes from SYNCX_SERVER_URL (default `+defaultServerURL+`).`)
}

// Run dispatches the subcommands, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	baseURL := os.Getenv("SYNCX_SERVER_URL")
	if baseURL == "" {
		baseURL = defaultServerURL
	}

	c, err := client.New(client.Config{BaseURL: baseURL, StateDir: os.Getenv("SYNCX_STATE_DIR"), Logger: logger})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	ctx := context.Background()

	switch args[1] {
	case "create_account":
		return runCreateAccount(ctx, c, args[2:], stdout, stderr)
	case "login":
		return runLogin(ctx, c, args[2:], stdout, stderr)
	case "upload":
		return runUpload(ctx, c, args[2:], stdout, stderr)
	case "download":
		return runDownload(ctx, c, args[2:], stdout, stderr)
	case "merkleroot":
		return runMerkleRoot(c, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func runCreateAccount(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create_account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	password := fs.String("p", "", "account password")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *password == "" {
		_, _ = fmt.Fprintln(stderr, "create_account: -p <password> is required")
		return 2
	}

	id, err := c.Register(ctx, *password)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "account created:", id)
	return 0
}

func runLogin(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	password := fs.String("p", "", "account password")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *password == "" {
		_, _ = fmt.Fprintln(stderr, "login: -p <password> is required")
		return 2
	}

	if err := c.Login(ctx, *password); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "token refreshed")
	return 0
}

func runUpload(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("d", "", "directory to upload")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dir == "" {
		_, _ = fmt.Fprintln(stderr, "upload: -d <dir> is required")
		return 2
	}

	res, err := c.Upload(ctx, *dir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "uploaded %d files\nmerkle root: %s\n", len(res.Files), res.Root)
	return 0
}

func runDownload(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "", "file name to download")
	dest := fs.String("d", ".", "destination directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		_, _ = fmt.Fprintln(stderr, "download: -f <file> is required")
		return 2
	}

	res, err := c.Download(ctx, *file, *dest)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if !res.Valid {
		_, _ = fmt.Fprintf(stderr, "VERIFICATION FAILED for %s\nexpected root: %s\ncomputed root: %s\n",
			*file, res.ExpectedRoot, res.ComputedRoot)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "downloaded %s (verified against %s)\n", res.Path, res.ExpectedRoot)
	return 0
}

func runMerkleRoot(c *client.Client, stdout, stderr io.Writer) int {
	root := c.State().MerkleTreeRoot
	if root == "" {
		_, _ = fmt.Fprintln(stderr, "no stored root, upload a directory first")
		return 1
	}
	_, _ = fmt.Fprintln(stdout, root)
	return 0
}
