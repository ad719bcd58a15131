package pdf_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kpauljoseph/studyguide/internal/pdf"
	"github.com/kpauljoseph/studyguide/internal/testutil"
	"github.com/kpauljoseph/studyguide/pkg/logger"
)

func extractorTestLogger() *logger.Logger {
	log := logger.New(
		logger.WithOutput(GinkgoWriter),
		logger.WithPrefix("[pdf-test] "),
		logger.WithFlags(0),
	)
	log.SetVerbose(true)
	log.SetLevel(logger.LevelTrace)
	return log
}

type fakeDocument struct {
	pages  []string
	failAt int
	closed bool
}

func (d *fakeDocument) NumPage() int { return len(d.pages) }

func (d *fakeDocument) Text(n int) (string, error) {
	if d.failAt > 0 && n+1 == d.failAt {
		return "", errors.New("broken content stream")
	}
	return d.pages[n], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func openerFor(doc *fakeDocument) pdf.Opener {
	return func(string) (pdf.Document, error) { return doc, nil }
}

var _ = Describe("PDF Extractor", func() {
	var (
		ctx        context.Context
		testLogger *logger.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		testLogger = extractorTestLogger()
	})

	Context("page concatenation", func() {
		It("should join pages with no separator", func() {
			doc := &fakeDocument{pages: []string{"Hello\n\n", "World\n"}}
			text, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(ctx, "two-pages.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("HelloWorld"))
			Expect(doc.closed).To(BeTrue())
		})

		It("should keep line breaks inside a page", func() {
			doc := &fakeDocument{pages: []string{"line one\nline two\n"}}
			text, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(ctx, "one-page.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("line one\nline two"))
		})

		It("should let image-only pages contribute nothing", func() {
			doc := &fakeDocument{pages: []string{"", "Only text\n", ""}}
			text, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(ctx, "scanned.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Only text"))
		})

		It("should return an empty string for a PDF without text", func() {
			doc := &fakeDocument{pages: []string{"", ""}}
			text, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(ctx, "blank.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})

		It("should return each page separately", func() {
			doc := &fakeDocument{pages: []string{"Hello\n", "", "World\n\n"}}
			pages, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).Pages(ctx, "three-pages.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(Equal([]string{"Hello", "", "World"}))
		})
	})

	Context("read failures", func() {
		It("should report the failing page", func() {
			doc := &fakeDocument{pages: []string{"a", "b", "c"}, failAt: 2}
			_, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(ctx, "bad.pdf")

			var readErr *pdf.ReadError
			Expect(errors.As(err, &readErr)).To(BeTrue())
			Expect(readErr.Page).To(Equal(2))
			Expect(readErr.Path).To(Equal("bad.pdf"))
		})

		It("should flag documents that need a password", func() {
			opener := func(string) (pdf.Document, error) {
				return nil, fmt.Errorf("open: %w", fitz.ErrNeedsPassword)
			}
			_, err := pdf.NewExtractorWithOpener(opener, testLogger).ExtractText(ctx, "secret.pdf")

			var readErr *pdf.ReadError
			Expect(errors.As(err, &readErr)).To(BeTrue())
			Expect(readErr.Encrypted).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("encrypted"))
		})

		It("should stop when the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			doc := &fakeDocument{pages: []string{"a"}}
			_, err := pdf.NewExtractorWithOpener(openerFor(doc), testLogger).ExtractText(cancelled, "a.pdf")
			Expect(err).To(Equal(context.Canceled))
		})
	})

	Context("with real files", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "studyguide-pdf-test-*")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(tempDir)).To(Succeed())
		})

		It("should extract both pages of a generated PDF in order", func() {
			path := filepath.Join(tempDir, "hello.pdf")
			Expect(testutil.WritePDF(path, "Hello", "World")).To(Succeed())

			text, err := pdf.NewExtractor(testLogger).ExtractText(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(HavePrefix("Hello"))
			Expect(text).To(HaveSuffix("World"))
			Expect(text).NotTo(ContainSubstring("\n"))
		})

		It("should return a ReadError for a corrupt file", func() {
			path := filepath.Join(tempDir, "corrupt.pdf")
			Expect(os.WriteFile(path, []byte("definitely not a pdf"), 0644)).To(Succeed())

			_, err := pdf.NewExtractor(testLogger).ExtractText(ctx, path)
			var readErr *pdf.ReadError
			Expect(errors.As(err, &readErr)).To(BeTrue())
		})

		It("should inspect page geometry with pdfcpu", func() {
			path := filepath.Join(tempDir, "geometry.pdf")
			Expect(testutil.WritePDF(path, "one", "two", "three")).To(Succeed())

			info, err := pdf.Inspect(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.PageCount()).To(Equal(3))
			Expect(info.Pages[0]).To(Equal(pdf.PageDimensions{Width: 612, Height: 792}))
		})
	})
})
