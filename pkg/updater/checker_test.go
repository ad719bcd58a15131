package updater_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kpauljoseph/studyguide/pkg/logger"
	"github.com/kpauljoseph/studyguide/pkg/updater"
)

var _ = Describe("Checker", func() {
	var (
		server   *httptest.Server
		requests atomic.Int32
		agent    atomic.Value
		status   int
		release  updater.GitHubRelease
		log      *logger.Logger
	)

	BeforeEach(func() {
		requests.Store(0)
		status = http.StatusOK
		release = updater.GitHubRelease{TagName: "v1.10.0", Body: "Faster OCR", HTMLURL: "https://example.test/releases/v1.10.0"}
		log = logger.New(logger.WithOutput(GinkgoWriter), logger.WithFlags(0))

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			agent.Store(r.Header.Get("User-Agent"))
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(release)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should report a newer release", func() {
		checker := updater.NewChecker(log, updater.WithReleaseURL(server.URL), updater.WithCurrentVersion("v1.9.0"))
		info, err := checker.CheckForUpdates(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsAvailable).To(BeTrue())
		Expect(info.LatestVersion).To(Equal("1.10.0"))
		Expect(info.CurrentVersion).To(Equal("1.9.0"))
		Expect(info.DownloadURL).To(Equal(release.HTMLURL))
		Expect(agent.Load()).To(Equal("StudyGuide-Updater"))
	})

	It("should not report the running release", func() {
		checker := updater.NewChecker(log, updater.WithReleaseURL(server.URL), updater.WithCurrentVersion("1.10.0"))
		info, err := checker.CheckForUpdates(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsAvailable).To(BeFalse())
	})

	It("should check at most once an hour", func() {
		checker := updater.NewChecker(log, updater.WithReleaseURL(server.URL), updater.WithCurrentVersion("1.0.0"))
		_, err := checker.CheckForUpdates(context.Background())
		Expect(err).NotTo(HaveOccurred())

		info, err := checker.CheckForUpdates(context.Background())
		Expect(err).To(MatchError(updater.ErrCheckedRecently))
		Expect(info).To(BeNil())
		Expect(requests.Load()).To(Equal(int32(1)))
	})

	It("should retry right after a failed check", func() {
		status = http.StatusBadGateway
		checker := updater.NewChecker(log, updater.WithReleaseURL(server.URL), updater.WithCurrentVersion("1.0.0"))
		_, err := checker.CheckForUpdates(context.Background())
		Expect(err).To(MatchError(ContainSubstring("status 502")))

		status = http.StatusOK
		info, err := checker.CheckForUpdates(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsAvailable).To(BeTrue())
		Expect(requests.Load()).To(Equal(int32(2)))
	})

	It("should fail on a non-200 response", func() {
		status = http.StatusForbidden
		checker := updater.NewChecker(log, updater.WithReleaseURL(server.URL))
		_, err := checker.CheckForUpdates(context.Background())
		Expect(err).To(MatchError(ContainSubstring("status 403")))
	})

	DescribeTable("CompareVersions",
		func(a, b string, want int) {
			Expect(updater.CompareVersions(a, b)).To(Equal(want))
		},
		Entry("equal", "1.2.3", "1.2.3", 0),
		Entry("numeric minor", "1.9.0", "1.10.0", -1),
		Entry("newer patch", "1.2.4", "1.2.3", 1),
		Entry("shorter is older", "1.2", "1.2.0", -1),
		Entry("placeholder against release", "VERSION_PLACEHOLDER", "1.0.0", 1),
	)
})
