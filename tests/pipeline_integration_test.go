package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/dio26699-sudo/ocrmonday/internal/monday"
	"github.com/dio26699-sudo/ocrmonday/internal/pipeline"
	"github.com/dio26699-sudo/ocrmonday/internal/queue"
	"github.com/dio26699-sudo/ocrmonday/internal/record"
	"github.com/dio26699-sudo/ocrmonday/internal/webhook"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

const testPayload = "A:500000000*B:123456789*F:20250929*G:FT 01/100*O:55,20"

func qrPNG(payload string) []byte {
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	Expect(err).NotTo(HaveOccurred())

	var buf bytes.Buffer
	Expect(png.Encode(&buf, matrix)).To(Succeed())
	return buf.Bytes()
}

// graphqlCall is one captured request to the fake monday API.
type graphqlCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// fakeMonday answers the GraphQL endpoint and asset downloads, capturing
// every mutation for later assertions.
type fakeMonday struct {
	mu          sync.Mutex
	mutations   []graphqlCall
	assetPNG    []byte
	inFlight    int
	maxInFlight int
}

// enter and leave bracket each request so the test can observe how many jobs
// the queue ran against the API at once.
func (f *fakeMonday) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeMonday) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeMonday) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeMonday) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	f.enter()
	defer f.leave()

	var call graphqlCall
	Expect(json.NewDecoder(r.Body).Decode(&call)).To(Succeed())

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(call.Query, "assets"):
		host := "http://" + r.Host
		fmt.Fprintf(w, `{"data": {"items": [{"assets": [{"name": "invoice.png", "public_url": "%s/assets/invoice.png"}]}]}}`, host)
	case strings.Contains(call.Query, "change_multiple_column_values"):
		f.mu.Lock()
		f.mutations = append(f.mutations, call)
		f.mu.Unlock()
		fmt.Fprint(w, `{"data": {"change_multiple_column_values": {"id": "1"}}}`)
	default:
		http.Error(w, "unexpected query", http.StatusBadRequest)
	}
}

func (f *fakeMonday) handleAsset(w http.ResponseWriter, r *http.Request) {
	f.enter()
	defer f.leave()

	w.Header().Set("Content-Type", "image/png")
	w.Write(f.assetPNG)
}

func (f *fakeMonday) capturedMutations() []graphqlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]graphqlCall(nil), f.mutations...)
}

var _ = Describe("Integration", func() {
	var (
		ghServer *ghttp.Server
		fake     *fakeMonday
		records  record.Store
		q        *queue.Queue
		server   *webhook.Server
	)

	BeforeEach(func() {
		fake = &fakeMonday{assetPNG: qrPNG(testPayload)}

		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler("POST", "/", fake.handleGraphQL)
		ghServer.RouteToHandler("GET", "/assets/invoice.png", fake.handleAsset)

		var err error
		records, err = record.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())

		client := monday.NewClient(ghServer.URL(), "test-token", monday.ColumnMap{
			Total:         "numbers_total",
			InvoiceNumber: "text_invoice",
			CustomerTaxID: "text_nif",
			InvoiceDate:   "date_invoice",
			Currency:      "text_currency",
			Method:        "text_method",
		}, 0)

		p := pipeline.New(pipeline.Config{
			Source:        client,
			Sink:          client,
			Records:       records,
			RetryAttempts: 1,
		})
		q = queue.New(p, 2, 0)
		server = webhook.NewServer(q, records, "")
	})

	AfterEach(func() {
		q.Wait()
		ghServer.Close()
		Expect(records.Close()).To(Succeed())
	})

	deliver := func(itemID, boardID string) {
		body := fmt.Sprintf(`{"event": {"pulseId": %s, "boardId": %s}}`, itemID, boardID)
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusAccepted))
	}

	It("should decode a delivered item's invoice and update its columns", func() {
		deliver("4242", "99")
		q.Wait()

		mutations := fake.capturedMutations()
		Expect(mutations).To(HaveLen(1))
		Expect(mutations[0].Variables).To(HaveKeyWithValue("item", "4242"))
		Expect(mutations[0].Variables).To(HaveKeyWithValue("board", "99"))

		var values map[string]any
		Expect(json.Unmarshal([]byte(mutations[0].Variables["values"].(string)), &values)).To(Succeed())
		Expect(values).To(HaveKeyWithValue("numbers_total", "55.20"))
		Expect(values).To(HaveKeyWithValue("text_invoice", "FT 01/100"))
		Expect(values).To(HaveKeyWithValue("text_nif", "123456789"))
		Expect(values).To(HaveKeyWithValue("text_currency", "EUR"))
		Expect(values).To(HaveKeyWithValue("text_method", "qrcode"))
		Expect(values["date_invoice"]).To(HaveKeyWithValue("date", "2025-09-29"))

		saved, err := records.ListJobs()
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).To(HaveLen(1))
		Expect(saved[0].ItemID).To(Equal("4242"))
		Expect(saved[0].Fields.TotalValue).To(Equal(55.20))
		Expect(saved[0].Error).To(BeEmpty())
	})

	It("should drain a burst of deliveries through the bounded queue", func() {
		for i := 1; i <= 5; i++ {
			deliver(fmt.Sprintf("%d", i), "99")
		}
		q.Wait()

		mutations := fake.capturedMutations()
		Expect(mutations).To(HaveLen(5))

		// Two workers means at most two jobs can have a call outstanding.
		Expect(fake.peakConcurrency()).To(BeNumerically("<=", 2))

		items := make([]string, 0, len(mutations))
		for _, m := range mutations {
			items = append(items, m.Variables["item"].(string))
		}
		Expect(items).To(ConsistOf("1", "2", "3", "4", "5"))

		saved, err := records.ListJobs()
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).To(HaveLen(5))
	})

	It("should expose processed jobs on the records endpoint", func() {
		deliver("4242", "99")
		q.Wait()

		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))

		var listed []*record.JobRecord
		Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
		Expect(listed).To(HaveLen(1))
		Expect(listed[0].Fields.InvoiceNumber).To(Equal("FT 01/100"))
	})
})
