package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kpauljoseph/studyguide/internal/pdf"
	"github.com/kpauljoseph/studyguide/pkg/logger"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: debug_pdf file.pdf")
		os.Exit(1)
	}
	pdfPath := os.Args[1]

	log := logger.New(logger.WithPrefix("[debug_pdf] "))
	log.SetVerbose(true)

	extractor := pdf.NewExtractor(log)
	pages, err := extractor.Pages(context.Background(), pdfPath)
	if err != nil {
		fmt.Printf("Error reading PDF: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nBasic Properties:\n")
	fmt.Printf("Pages: %d\n", len(pages))

	total := 0
	for i, text := range pages {
		fmt.Printf("\nPage %d (%d characters):\n", i+1, len(text))
		if text == "" {
			fmt.Println("(no embedded text)")
			continue
		}
		fmt.Println(text)
		total += len(text)
	}

	fmt.Printf("\nTotal extracted characters: %d\n", total)
}
