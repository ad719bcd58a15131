package ollama_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kpauljoseph/studyguide/internal/ollama"
)

var _ = Describe("TranscriptionPrompt", func() {
	It("should indent every guideline line by four spaces", func() {
		lines := strings.Split(ollama.TranscriptionPrompt, "\n")
		Expect(lines).To(HaveLen(8))
		Expect(lines[0]).To(HavePrefix("You are an advanced OCR tool."))
		for _, line := range lines[1:] {
			Expect(line).To(HavePrefix("    "))
			Expect(line[4:5]).NotTo(Equal(" "))
		}
	})

	It("should keep the trailing space after the word-break guideline", func() {
		Expect(ollama.TranscriptionPrompt).To(ContainSubstring("natural, readable word. \n    5. **No Additional Comments"))
	})
})
