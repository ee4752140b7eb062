package provider_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geofactory/eefetch/interface/provider"
	"github.com/geofactory/eefetch/service"
)

const (
	portalCSRF     = "f1e2d3c4"
	portalArchive  = "LC08_L1TP_038030_20200930_20201006_01_T1.tar"
	portalEntityID = "LC80380302020274LGN00"
)

// fakeResolver implements provider.EntityResolver
type fakeResolver struct{}

func (fakeResolver) GetEntityID(ctx context.Context, displayID, dataset string) (string, error) {
	return portalEntityID, nil
}

// fakePortal emulates the EarthExplorer login and download endpoints
type fakePortal struct {
	server    *httptest.Server
	archive   []byte
	available map[string]bool
	slow      map[string]bool
	probes    []string
	fileReqs  []string
}

func newFakePortal(size int) *fakePortal {
	archive := make([]byte, size)
	for i := range archive {
		archive[i] = byte(i % 251)
	}
	p := &fakePortal{archive: archive, available: map[string]bool{}, slow: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", p.login)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/download/", p.download)
	mux.HandleFunc("/file/", p.file)
	p.server = httptest.NewServer(mux)
	return p
}

func (p *fakePortal) login(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		fmt.Fprintf(w, `<html><form><input type="hidden" name="csrf" value="%s"></form></html>`, portalCSRF)
		return
	}
	r.ParseForm()
	if r.PostForm.Get("csrf") != portalCSRF || r.PostForm.Get("password") != "pa$$" {
		fmt.Fprint(w, "<html>login failed</html>")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "EROS_SSO_production_secure", Value: "session", Path: "/"})
}

func (p *fakePortal) download(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	productID := parts[1]
	p.probes = append(p.probes, productID)
	if p.slow[productID] {
		time.Sleep(500 * time.Millisecond)
	}
	if !p.available[productID] {
		fmt.Fprint(w, `{"errorMessage": "Download not available for this product"}`)
		return
	}
	fmt.Fprintf(w, `{"url": "%s/file/archive"}`, p.server.URL)
}

func (p *fakePortal) file(w http.ResponseWriter, r *http.Request) {
	p.fileReqs = append(p.fileReqs, r.Method+" "+r.Header.Get("Range"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+portalArchive+`"`)
	http.ServeContent(w, r, "archive.tar", time.Unix(0, 0), bytes.NewReader(p.archive))
}

var _ = Describe("EarthExplorer", func() {
	var (
		ctx       context.Context
		portal    *fakePortal
		ee        *provider.EarthExplorer
		outputDir string
		options   provider.DownloadOptions
	)

	BeforeEach(func() {
		ctx = context.Background()
		portal = newFakePortal(64 * 1024)
		portal.available["good"] = true
		var err error
		outputDir, err = os.MkdirTemp("", "eefetch")
		Expect(err).NotTo(HaveOccurred())
		options = provider.DownloadOptions{OutputDir: outputDir}

		ee = provider.NewEarthExplorerURL(
			portal.server.URL+"/login/",
			portal.server.URL+"/logout",
			portal.server.URL+"/download/{PRODUCT_ID}/{ENTITY_ID}/EE/",
			fakeResolver{},
		)
		ee.Products = provider.ProductTable{"landsat_8_c1": {"good"}}
		Expect(ee.Login(ctx, "user", "pa$$")).To(Succeed())
	})

	AfterEach(func() {
		portal.server.Close()
		os.RemoveAll(outputDir)
	})

	Describe("Login", func() {
		It("holds a session cookie", func() {
			Expect(ee.LoggedIn()).To(BeTrue())
		})
		It("fails without a session cookie", func() {
			bad := provider.NewEarthExplorerURL(portal.server.URL+"/login/", portal.server.URL+"/logout", "", nil)
			err := bad.Login(ctx, "user", "wrong")
			var authErr service.ErrAuthentication
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(bad.LoggedIn()).To(BeFalse())
		})
	})

	Describe("Download", func() {
		It("downloads a scene archive", func() {
			localFile, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(localFile).To(Equal(filepath.Join(outputDir, portalArchive)))
			Expect(os.ReadFile(localFile)).To(Equal(portal.archive))
		})

		It("resolves display identifiers to entity identifiers", func() {
			localFile, err := ee.Download(ctx, "LC08_L1TP_038030_20200930_20201006_01_T1", options)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.ReadFile(localFile)).To(Equal(portal.archive))
		})

		It("only resolves the filename when skipping", func() {
			options.Skip = true
			localFile, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(localFile).To(Equal(filepath.Join(outputDir, portalArchive)))
			Expect(localFile).NotTo(BeAnExistingFile())

			// a second skipping call resolves the same filename
			again, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(localFile))
			Expect(localFile).NotTo(BeAnExistingFile())
		})

		It("does not transfer a complete file again", func() {
			localFile, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())

			portal.fileReqs = nil
			again, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(localFile))
			// only the header resolution request, no transfer
			Expect(portal.fileReqs).To(HaveLen(1))
			Expect(portal.fileReqs[0]).To(Equal("GET "))
		})

		It("resumes a partial file with a range request", func() {
			partial := int64(10_000)
			localFile := filepath.Join(outputDir, portalArchive)
			Expect(os.WriteFile(localFile, portal.archive[:partial], 0644)).To(Succeed())

			_, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(portal.fileReqs).To(ContainElement(ContainSubstring(fmt.Sprintf("bytes=%d-", partial))))
			Expect(os.ReadFile(localFile)).To(Equal(portal.archive))
		})

		It("restarts a partial file when overwriting", func() {
			localFile := filepath.Join(outputDir, portalArchive)
			Expect(os.WriteFile(localFile, portal.archive[:10_000], 0644)).To(Succeed())

			options.Overwrite = true
			_, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(portal.fileReqs).NotTo(ContainElement(ContainSubstring("bytes=")))
			Expect(os.ReadFile(localFile)).To(Equal(portal.archive))
		})
	})

	Describe("Data product fallback", func() {
		It("tries the candidates in order until one is available", func() {
			ee.Products = provider.ProductTable{"landsat_8_c1": {"bad1", "bad2", "good"}}
			localFile, err := ee.Download(ctx, portalEntityID, options)
			Expect(err).NotTo(HaveOccurred())
			Expect(portal.probes).To(Equal([]string{"bad1", "bad2", "good"}))
			Expect(os.ReadFile(localFile)).To(Equal(portal.archive))
		})

		It("aggregates the failures of all candidates", func() {
			ee.Products = provider.ProductTable{"landsat_8_c1": {"bad1", "bad2"}}
			_, err := ee.Download(ctx, portalEntityID, options)
			var downloadErr service.ErrDownload
			Expect(errors.As(err, &downloadErr)).To(BeTrue())
			Expect(downloadErr.Reasons).To(HaveLen(2))
			entries, err := os.ReadDir(outputDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("fails on unknown datasets", func() {
			options.Dataset = "landsat_x"
			_, err := ee.Download(ctx, portalEntityID, options)
			var unsupportedErr service.ErrUnsupportedDataset
			Expect(errors.As(err, &unsupportedErr)).To(BeTrue())
		})

		It("does not try further candidates after a timeout", func() {
			ee.Products = provider.ProductTable{"landsat_8_c1": {"slow", "good"}}
			portal.slow["slow"] = true
			options.Timeout = 50 * time.Millisecond

			_, err := ee.Download(ctx, portalEntityID, options)
			var timeoutErr service.ErrTimeout
			Expect(errors.As(err, &timeoutErr)).To(BeTrue())
			Expect(timeoutErr.Timeout).To(Equal(options.Timeout))
			Expect(portal.probes).To(Equal([]string{"slow"}))
		})
	})
})
