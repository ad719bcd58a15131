package encoder_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/kpauljoseph/studyguide/internal/encoder"
	"github.com/kpauljoseph/studyguide/pkg/logger"
)

func encoderTestLogger() *logger.Logger {
	log := logger.New(
		logger.WithOutput(GinkgoWriter),
		logger.WithPrefix("[encoder-test] "),
		logger.WithFlags(0),
	)
	log.SetLevel(logger.LevelTrace)
	return log
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	return img
}

func writeImage(path string, encode func(io.Writer, image.Image) error) {
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(encode(f, createTestImage(16, 12))).To(Succeed())
}

func decodePayload(payload string) (image.Image, string) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	Expect(err).NotTo(HaveOccurred())
	img, format, err := image.Decode(bytes.NewReader(raw))
	Expect(err).NotTo(HaveOccurred())
	return img, format
}

var _ = Describe("Encoder", func() {
	var (
		sourceDir string
		enc       *encoder.Encoder
		ctx       context.Context
	)

	BeforeEach(func() {
		var err error
		sourceDir, err = os.MkdirTemp("", "encoder-test-*")
		Expect(err).NotTo(HaveOccurred())
		enc = encoder.New(encoderTestLogger())
		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(sourceDir)
	})

	DescribeTable("re-encoding every supported format as PNG",
		func(name string, encode func(io.Writer, image.Image) error) {
			path := filepath.Join(sourceDir, name)
			writeImage(path, encode)

			payload, err := enc.Encode(ctx, path)
			Expect(err).NotTo(HaveOccurred())

			img, format := decodePayload(payload)
			Expect(format).To(Equal("png"))
			Expect(img.Bounds().Dx()).To(Equal(16))
			Expect(img.Bounds().Dy()).To(Equal(12))
		},
		Entry("png", "page.png", png.Encode),
		Entry("jpeg", "page.jpg", func(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, nil) }),
		Entry("gif", "page.gif", func(w io.Writer, img image.Image) error { return gif.Encode(w, img, nil) }),
		Entry("bmp", "page.bmp", bmp.Encode),
		Entry("tiff", "page.tiff", func(w io.Writer, img image.Image) error { return tiff.Encode(w, img, nil) }),
	)

	It("should keep PNG pixels lossless", func() {
		path := filepath.Join(sourceDir, "exact.png")
		writeImage(path, png.Encode)

		payload, err := enc.Encode(ctx, path)
		Expect(err).NotTo(HaveOccurred())

		img, _ := decodePayload(payload)
		want := createTestImage(16, 12)
		r1, g1, b1, a1 := img.At(5, 7).RGBA()
		r2, g2, b2, a2 := want.At(5, 7).RGBA()
		Expect([]uint32{r1, g1, b1, a1}).To(Equal([]uint32{r2, g2, b2, a2}))
	})

	It("should return an ImageDecodeError for non-image bytes", func() {
		path := filepath.Join(sourceDir, "fake.png")
		Expect(os.WriteFile(path, []byte("this is not a png"), 0644)).To(Succeed())

		_, err := enc.Encode(ctx, path)
		var decodeErr *encoder.ImageDecodeError
		Expect(errors.As(err, &decodeErr)).To(BeTrue())
		Expect(decodeErr.Path).To(Equal(path))
	})

	It("should fail for a missing file without a decode error", func() {
		_, err := enc.Encode(ctx, filepath.Join(sourceDir, "missing.png"))
		Expect(err).To(HaveOccurred())
		var decodeErr *encoder.ImageDecodeError
		Expect(errors.As(err, &decodeErr)).To(BeFalse())
	})

	It("should honour a cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := enc.Encode(cancelled, filepath.Join(sourceDir, "any.png"))
		Expect(err).To(MatchError(context.Canceled))
	})
})
