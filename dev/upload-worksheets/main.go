// Command upload-worksheets drops local worksheet exports into the S3
// inbox so a running server imports them on its next poll.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	s3client "github.com/innowave/analytiqa/internal/s3"
)

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func main() {
	envFile := flag.String("env", "dev/s3.env", "file with S3_* and AWS_* settings")
	user := flag.String("user", "", "email of the user the import runs as")
	flag.Parse()

	if *user == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: upload-worksheets --user <email> <file.xlsx...>\n")
		os.Exit(1)
	}

	env, err := loadEnv(*envFile)
	if err != nil {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	ctx := context.Background()
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:  env["S3_ENDPOINT"],
		Region:    env["S3_REGION"],
		Bucket:    env["S3_BUCKET"],
		AccessKey: env["AWS_ACCESS_KEY_ID"],
		SecretKey: env["AWS_SECRET_ACCESS_KEY"],
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		log.Fatalf("create s3 client: %v", err)
	}

	for _, path := range flag.Args() {
		if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
			log.Printf("skipping %s: not an .xlsx file", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		key := s3client.PendingPrefix + *user + "/" + filepath.Base(path)
		if err := client.Put(ctx, key, xlsxType, data); err != nil {
			log.Fatalf("upload %s: %v", key, err)
		}
		fmt.Printf("uploaded: s3://%s/%s\n", env["S3_BUCKET"], key)
	}
}

func loadEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env, scanner.Err()
}
