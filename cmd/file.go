package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/app"
	"github.com/zzenonn/zgate/internal/service"
)

var getCmd = &cobra.Command{
	Use:   "get [key] [output-path]",
	Short: "Retrieve a file through the gateway pipeline",
	Long:  "Looks the key up, applies the access policy and streams the file from its backend",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, outputPath := args[0], args[1]

		quiet, _ := cmd.Flags().GetBool("quiet")
		rng, _ := cmd.Flags().GetString("range")
		referer, _ := cmd.Flags().GetString("referer")

		a, err := app.Build(cfg)
		if err != nil {
			fmt.Printf("Error initializing gateway: %v\n", err)
			return
		}
		defer a.Close()

		result, err := a.Retrieval.Retrieve(context.Background(), service.RetrievalRequest{
			Key:     key,
			Method:  http.MethodGet,
			Referer: referer,
			Range:   rng,
		})
		if err != nil {
			fmt.Printf("Error retrieving file: %v\n", err)
			return
		}
		if result.Decision != access.Allow {
			fmt.Printf("Access denied: %s\n", result.Decision)
			return
		}

		resp := result.Response
		if resp.Location != "" {
			fmt.Printf("File is hosted externally: %s\n", resp.Location)
			return
		}
		if resp.Body == nil {
			fmt.Printf("Nothing to download (status %d)\n", resp.Status)
			return
		}
		defer resp.Body.Close()

		// If output path is a directory, use the filename from the record
		if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
			outputPath = filepath.Join(outputPath, filepath.Base(result.Record.DisplayName()))
		}

		// Create output directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			fmt.Printf("Error creating output directory: %v\n", err)
			return
		}

		file, err := os.Create(outputPath)
		if err != nil {
			fmt.Printf("Error creating output file: %v\n", err)
			return
		}
		defer file.Close()

		var w io.Writer = file
		if !quiet {
			size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
			if err != nil {
				size = -1
			}
			bar := progressbar.DefaultBytes(size, "downloading")
			w = io.MultiWriter(file, bar)
		}

		n, err := io.Copy(w, resp.Body)
		if err != nil {
			fmt.Printf("\nError writing file after %d bytes: %v\n", n, err)
			return
		}
		fmt.Printf("\nFile retrieved successfully: %s -> %s (%d bytes, status %d)\n", key, outputPath, n, resp.Status)
	},
}

func init() {
	getCmd.Flags().BoolP("quiet", "q", false, "suppress the progress bar")
	getCmd.Flags().String("range", "", "HTTP Range header value, e.g. bytes=0-1023")
	getCmd.Flags().String("referer", "", "Referer to evaluate the access policy against")
	rootCmd.AddCommand(getCmd)
}
