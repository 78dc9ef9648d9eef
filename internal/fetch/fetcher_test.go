package fetch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/hemobank/bo-dashboard/internal/fetch"
	"github.com/hemobank/bo-dashboard/internal/fetch/mocks"
	"github.com/hemobank/bo-dashboard/internal/gate"
)

const orderQueueSchema = `{
	"type": "object",
	"required": ["pending"],
	"properties": {
		"pending": {"type": "integer", "minimum": 0}
	}
}`

func fetchErrorKind(err error) gate.ErrorKind {
	var fe *gate.FetchError
	ExpectWithOffset(1, errors.As(err, &fe)).To(BeTrue(), "expected a FetchError, got %v", err)
	return fe.Kind
}

var _ = Describe("JSONFetcher", func() {
	Describe("NewJSONFetcher", func() {
		DescribeTable("rejects invalid endpoints",
			func(endpoint, message string) {
				_, err := fetch.NewJSONFetcher(endpoint)
				Expect(err).To(MatchError(ContainSubstring(message)))
			},
			Entry("unsupported scheme", "ftp://backend/orders", "scheme must be http or https"),
			Entry("relative URL", "/api/orders", "scheme must be http or https"),
			Entry("missing host", "http:///api/orders", "missing host"),
			Entry("unparsable", "http://[::1", "invalid endpoint"),
		)
	})

	Describe("URL", func() {
		It("merges view parameters into the endpoint query", func() {
			f, err := fetch.NewJSONFetcher("http://backend/api/orders?site=north&range=1h")
			Expect(err).NotTo(HaveOccurred())

			u, err := url.Parse(f.URL(map[string]string{"range": "24h", "status": "pending"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Path).To(Equal("/api/orders"))
			Expect(u.Query()).To(Equal(url.Values{
				"site":   {"north"},
				"range":  {"24h"},
				"status": {"pending"},
			}))
		})

		It("leaves the endpoint untouched without parameters", func() {
			f, err := fetch.NewJSONFetcher("http://backend/api/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.URL(nil)).To(Equal("http://backend/api/health"))
		})
	})

	Context("against a backend", func() {
		var (
			mux    *http.ServeMux
			server *httptest.Server
			base   string
		)

		BeforeEach(func() {
			mux = http.NewServeMux()
			server = newTestServer(mux)
			base = server.URL
		})

		AfterEach(func() {
			server.Close()
		})

		It("returns the response body and sends parameters", func() {
			var got url.Values
			mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.Query()
				_, _ = w.Write([]byte(`{"pending":3}`))
			})

			f, err := fetch.NewJSONFetcher(base + "/api/orders")
			Expect(err).NotTo(HaveOccurred())

			payload, err := f.Fetch(context.Background(), map[string]string{"range": "24h"})
			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(MatchJSON(`{"pending":3}`))
			Expect(got.Get("range")).To(Equal("24h"))
		})

		It("extracts the payload at the data path", func() {
			mux.HandleFunc("/api/stock", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"meta":{"page":1},"data":{"units":[{"group":"O-","count":12}]}}`))
			})

			f, err := fetch.NewJSONFetcher(base+"/api/stock", fetch.WithDataPath("data.units"))
			Expect(err).NotTo(HaveOccurred())

			payload, err := f.Fetch(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(MatchJSON(`[{"group":"O-","count":12}]`))
		})

		It("reports a missing data path as a parse error", func() {
			mux.HandleFunc("/api/stock", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"meta":{}}`))
			})

			f, err := fetch.NewJSONFetcher(base+"/api/stock", fetch.WithDataPath("data.units"))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fetch(context.Background(), nil)
			Expect(fetchErrorKind(err)).To(Equal(gate.ErrorKindParse))
			Expect(err).To(MatchError(ContainSubstring(`data path "data.units" not found`)))
		})

		It("reports malformed JSON as a parse error", func() {
			mux.HandleFunc("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			})

			f, err := fetch.NewJSONFetcher(base + "/api/orders")
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fetch(context.Background(), nil)
			Expect(fetchErrorKind(err)).To(Equal(gate.ErrorKindParse))
		})

		It("reports non-2xx responses as network errors", func() {
			mux.HandleFunc("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})

			f, err := fetch.NewJSONFetcher(base + "/api/orders")
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fetch(context.Background(), nil)
			Expect(fetchErrorKind(err)).To(Equal(gate.ErrorKindNetwork))
			Expect(err).To(MatchError(ContainSubstring("backend returned 503")))

			var httpErr *fetch.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
		})

		It("returns the context error when the deadline passes", func() {
			mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			})

			f, err := fetch.NewJSONFetcher(base + "/api/orders")
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err = f.Fetch(ctx, nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})

		Context("with a schema", func() {
			var f *fetch.JSONFetcher

			BeforeEach(func() {
				schema, err := fetch.CompileSchema("order-queue", []byte(orderQueueSchema))
				Expect(err).NotTo(HaveOccurred())

				f, err = fetch.NewJSONFetcher(base+"/api/orders", fetch.WithSchema(schema))
				Expect(err).NotTo(HaveOccurred())
			})

			It("accepts conforming payloads", func() {
				mux.HandleFunc("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
					_, _ = w.Write([]byte(`{"pending":4}`))
				})

				payload, err := f.Fetch(context.Background(), nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(payload).To(MatchJSON(`{"pending":4}`))
			})

			It("rejects payloads violating the schema", func() {
				mux.HandleFunc("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
					_, _ = w.Write([]byte(`{"pending":-1}`))
				})

				_, err := f.Fetch(context.Background(), nil)
				Expect(fetchErrorKind(err)).To(Equal(gate.ErrorKindParse))
				Expect(err).To(MatchError(ContainSubstring("payload does not match schema")))
			})
		})
	})

	Context("with a mocked client", func() {
		var (
			ctrl   *gomock.Controller
			client *mocks.MockClient
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			client = mocks.NewMockClient(ctrl)
		})

		It("wraps transport failures as network errors", func() {
			client.EXPECT().
				Get(gomock.Any(), "http://backend/api/health?probe=deep").
				Return(nil, errors.New("connection refused"))

			f, err := fetch.NewJSONFetcher("http://backend/api/health", fetch.WithClient(client))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fetch(context.Background(), map[string]string{"probe": "deep"})
			Expect(fetchErrorKind(err)).To(Equal(gate.ErrorKindNetwork))
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
		})

		It("returns payloads as raw JSON", func() {
			client.EXPECT().
				Get(gomock.Any(), "http://backend/api/health").
				Return([]byte(`{"db":"up"}`), nil)

			f, err := fetch.NewJSONFetcher("http://backend/api/health", fetch.WithClient(client))
			Expect(err).NotTo(HaveOccurred())

			payload, err := f.Fetch(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(Equal(json.RawMessage(`{"db":"up"}`)))
		})
	})
})
