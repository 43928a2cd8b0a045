package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go-qr-scanner/internal/analyzer"
	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/loader"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/repository"
	"go-qr-scanner/internal/storage"
	"go-qr-scanner/pkg/validation"
)

func main() {
	framesDir := flag.String("frames", "", "replay the images in `dir` as a camera stream")
	fps := flag.Int("fps", 30, "frame rate used when replaying a stream")
	orientation := flag.Int("exif", 0, "override the EXIF orientation (1-8) of still images")
	tryHarder := flag.Bool("try-harder", true, "spend more time looking for a symbol in still images")
	timeout := flag.Duration("timeout", 10*time.Second, "give up on a scan after this long")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: qrscan [flags] <image-file|url> [image-file|url...]\n")
		fmt.Fprintf(os.Stderr, "       qrscan [flags] -frames <dir>\n\n")
		fmt.Fprintf(os.Stderr, "Decode QR codes from still images or a replayed frame sequence.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	logger.SetLevel(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *framesDir != "" {
		os.Exit(replay(ctx, *framesDir, *fps, *timeout))
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	decoder := analyzer.NewQRDecoder(analyzer.StillOptions().WithTryHarder(*tryHarder))
	scanner := analyzer.NewStillImageScanner(decoder, nil, nil)
	repo := repository.NewImageRepository(validation.NewURLValidator().AllowLocal(), fetchers())

	exitCode := 0
	for _, location := range flag.Args() {
		data, err := read(ctx, repo, location)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error: %v\n", location, err)
			exitCode = 1
			continue
		}

		exif := loader.EXIFOrientation(data)
		if *orientation != 0 {
			exif = *orientation
		}

		scanCtx, cancel := context.WithTimeout(ctx, *timeout)
		outcome := scanner.Scan(scanCtx, data, exif)
		cancel()

		if !outcome.IsDecoded() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", location, outcome.Message())
			exitCode = 1
			continue
		}
		if flag.NArg() > 1 {
			fmt.Printf("%s: ", location)
		}
		fmt.Println(outcome.Text)
	}
	os.Exit(exitCode)
}

// fetchers serves file:// locations from the filesystem root and http(s) from the network.
func fetchers() map[validation.SourceKind]storage.ImageFetcher {
	sources := map[validation.SourceKind]storage.ImageFetcher{
		validation.SourceHTTP: storage.NewHTTPImageFetcher(),
	}
	if local, err := storage.NewLocalFileFetcher(string(filepath.Separator)); err == nil {
		sources[validation.SourceLocal] = local
	}
	return sources
}

// read loads a plain path from disk and everything with a scheme through repo.
func read(ctx context.Context, repo repository.ImageRepository, location string) ([]byte, error) {
	if !strings.Contains(location, "://") {
		return os.ReadFile(location)
	}
	img, err := repo.FetchImage(ctx, location)
	if err != nil {
		return nil, err
	}
	return img.Bytes, nil
}

// replay offers every image in dir, in name order, to a stream session and
// prints the first payload it decodes.
func replay(ctx context.Context, dir string, fps int, timeout time.Duration) int {
	paths, err := framePaths(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %v\n", dir, err)
		return 1
	}
	if fps <= 0 {
		fps = 30
	}

	found := make(chan string, 1)
	session := analyzer.NewStreamScanSession(
		analyzer.NewQRDecoder(analyzer.StreamOptions()),
		func(_ context.Context, outcome analyzer.ScanOutcome) {
			found <- outcome.Text
		},
	)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := session.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer session.Stop()

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for _, path := range paths {
		buf, err := readFrame(path)
		if err != nil {
			logger.WithError(err).WithField("frame", path).Warn("Skipping unreadable frame")
			continue
		}
		session.Offer(buf)

		select {
		case text := <-found:
			fmt.Println(text)
			return 0
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "%s: no QR code found before timeout\n", dir)
			return 1
		case <-ticker.C:
		}
	}

	// the last frame may still be under analysis
	select {
	case text := <-found:
		fmt.Println(text)
		return 0
	case <-ctx.Done():
	case <-time.After(time.Second):
	}

	stats := session.Stats()
	fmt.Fprintf(os.Stderr, "%s: no QR code found in %d frames (%d analyzed, %d dropped)\n",
		dir, stats.Offered, stats.Analyzed, stats.Dropped)
	return 1
}

func framePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image frames found")
	}
	return paths, nil
}

// readFrame turns an image file into the Y8 buffer a camera would deliver.
func readFrame(path string) (frame.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return frame.Buffer{}, err
	}
	img, _, err := loader.Decode(data)
	if err != nil {
		return frame.Buffer{}, err
	}
	lum, err := frame.FromImage(img)
	if err != nil {
		return frame.Buffer{}, err
	}
	return frame.Buffer{
		Width:  lum.Width(),
		Height: lum.Height(),
		Format: frame.FormatY8,
		Data:   lum.Samples(),
	}, nil
}
