package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bytebpe/internal/vocab"
)

// gpt2Files is the reference GPT-2 vocabulary, useful to check loader compatibility.
var gpt2Files = map[string]string{
	vocab.VocabFileName:  "https://huggingface.co/openai-community/gpt2/resolve/main/vocab.json",
	vocab.MergesFileName: "https://huggingface.co/openai-community/gpt2/resolve/main/merges.txt",
}

// fetchGPT2 downloads the reference files into dir.
func fetchGPT2(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	for name, url := range gpt2Files {
		if err := download(ctx, url, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("error downloading %s: %w", name, err)
		}
	}
	return nil
}

func download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if n == 0 {
		return fmt.Errorf("download %s: got 0 bytes", url)
	}

	return nil
}
