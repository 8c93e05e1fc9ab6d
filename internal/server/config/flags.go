package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/docingest/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-m string   store backend ("postgres" or "memory")
//	-n string   environment name
//	-r string   staging root directory
//	-l string   log level
//	-x int      max accepted file size, bytes
//	-E string   embedding provider ("openai", "hashing", "none")
//	-U string   embedding endpoint base URL
//	-M string   embedding model
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name (empty disables uploads)
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-D string   comma-separated denied media types
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so the config file flag does not collide.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-m", "-n", "-r", "-l", "-x", "-E", "-U", "-M",
		"-u", "-p", "-b", "-g", "-e", "-D",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreBackend, "m", config.StoreBackend, "store backend (postgres|memory)")
	fs.StringVar(&config.Environment, "n", config.Environment, "environment name")
	fs.StringVar(&config.StagingRoot, "r", config.StagingRoot, "staging root directory")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.Int64Var(&config.MaxFileSize, "x", config.MaxFileSize, "max file size in bytes")

	fs.StringVar(&config.EmbeddingProvider, "E", config.EmbeddingProvider, "embedding provider (openai|hashing|none)")
	fs.StringVar(&config.EmbeddingBaseURL, "U", config.EmbeddingBaseURL, "embedding endpoint base URL")
	fs.StringVar(&config.EmbeddingModel, "M", config.EmbeddingModel, "embedding model")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	denied := fs.String("D", strings.Join(config.DeniedMediaTypes, ","), "comma-separated denied media types")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.DeniedMediaTypes = splitList(*denied)
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
