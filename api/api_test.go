package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tana-helper/api/auth"
	"github.com/papercomputeco/tana-helper/pkg/config"
	tanalogger "github.com/papercomputeco/tana-helper/pkg/logger"
	"github.com/papercomputeco/tana-helper/pkg/tana"
	"github.com/papercomputeco/tana-helper/pkg/translator"
	testutils "github.com/papercomputeco/tana-helper/pkg/utils/test"
	"github.com/papercomputeco/tana-helper/pkg/vector"
)

type staticVerifier struct {
	token string
}

func (v staticVerifier) Verify(_ context.Context, token string) (*jwt.RegisteredClaims, error) {
	if token != v.token {
		return nil, fmt.Errorf("%w: bad token", auth.ErrUnauthorized)
	}
	return &jwt.RegisteredClaims{Subject: "tester"}, nil
}

// recordingTranslator captures the parsed request of each call.
type recordingTranslator struct {
	last *translator.Request
}

func (r *recordingTranslator) ParseRequest(body []byte) (*translator.Request, error) {
	return translator.ParseRequest(body, translator.DefaultScore, translator.DefaultTop)
}

func (r *recordingTranslator) Upsert(_ context.Context, req *translator.Request) error {
	r.last = req
	return nil
}

func (r *recordingTranslator) Query(_ context.Context, req *translator.Request) (string, error) {
	r.last = req
	return tana.NoResults, nil
}

func (r *recordingTranslator) QueryText(_ context.Context, req *translator.Request) ([]translator.TextResult, error) {
	r.last = req
	return []translator.TextResult{}, nil
}

func (r *recordingTranslator) Delete(_ context.Context, req *translator.Request) error {
	r.last = req
	return nil
}

func post(path, contentType, body string) *http.Request {
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", contentType)
	return req
}

func readBody(resp *http.Response) string {
	b, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func decodeError(resp *http.Response) ErrorResponse {
	var body ErrorResponse
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Server", func() {
	var (
		server   *Server
		embedder *testutils.MockEmbedder
		driver   *testutils.MockVectorDriver
	)

	newService := func() *translator.Service {
		service, err := translator.New(translator.Config{
			Embedder: embedder,
			Driver:   driver,
			Options:  translator.Options{EnableTagFilter: true},
			Logger:   tanalogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return service
	}

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
		driver = testutils.NewMockVectorDriver()

		var err error
		server, err = NewServer(Config{ListenAddr: ":0", LocalService: true}, newService(), tanalogger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires a verifier when not local", func() {
			_, err := NewServer(Config{}, newService(), tanalogger.Nop())
			Expect(err).To(MatchError(ContainSubstring("token verifier is required")))
		})

		It("requires a translator", func() {
			_, err := NewServer(Config{LocalService: true}, nil, tanalogger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GET /", func() {
		It("reports the service is up", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`{"success": true, "message": "It is working"}`))
		})

		It("sets a request id", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(fiber.HeaderXRequestID)).NotTo(BeEmpty())
		})
	})

	Describe("POST /upsert", func() {
		It("stores the node from a text/plain body", func() {
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"nodeId":"abc","context":"hello world","tags":"book idea"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(readBody(resp)).To(BeEmpty())

			upserts := driver.Upserts()
			Expect(upserts).To(HaveLen(1))
			Expect(upserts[0].ID).To(Equal("abc"))
			Expect(upserts[0].Metadata.Supertags).To(Equal([]string{"book", "idea"}))
			Expect(upserts[0].Metadata.Text).To(Equal("hello world"))
		})

		It("is also served under /pinecone", func() {
			resp, err := server.app.Test(post("/pinecone/upsert", "application/json", `{"nodeId":"abc","context":"hello"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(driver.Upserts()).To(HaveLen(1))
		})

		It("returns 400 without a node id and makes no calls", func() {
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"context":"hello"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(decodeError(resp).Error).To(Equal(translator.ErrMissingNodeID.Error()))
			Expect(embedder.Calls()).To(BeEmpty())
			Expect(driver.Upserts()).To(BeEmpty())
		})

		It("returns 400 for a malformed body", func() {
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"nodeId":`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 502 when embedding fails", func() {
			embedder.FailOn = "boom"
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"nodeId":"abc","context":"boom"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
			Expect(driver.Upserts()).To(BeEmpty())
		})

		It("returns 502 when the store fails", func() {
			driver.Err = fmt.Errorf("%w: index unavailable", vector.ErrStore)
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"nodeId":"abc","context":"hello"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
			Expect(decodeError(resp).Error).To(ContainSubstring("index unavailable"))
		})
	})

	Describe("POST /query", func() {
		It("returns Tana Paste references as text", func() {
			driver.Matches = []vector.Match{
				{ID: "n1", Score: 0.95},
				{ID: "n2", Score: 0.70},
				{ID: "n3", Score: 0.85},
			}

			resp, err := server.app.Test(post("/query", "text/plain", `{"nodeId":"q","context":"find me"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(readBody(resp)).To(Equal("- [[^n1]]\n- [[^n3]]\n"))
		})

		It("returns the no results message", func() {
			resp, err := server.app.Test(post("/query", "text/plain", `{"nodeId":"q","context":"find me"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(readBody(resp)).To(Equal(tana.NoResults))
		})

		It("passes score, top and tags to the store", func() {
			resp, err := server.app.Test(post("/query", "text/plain", `{"nodeId":"q","context":"x","score":"0.5","top":"3","tags":"book"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			queries := driver.Queries()
			Expect(queries).To(HaveLen(1))
			Expect(queries[0].TopK).To(Equal(3))
			Expect(queries[0].Filter.Supertags).To(Equal([]string{"book"}))
		})

		It("returns 400 for a top below one", func() {
			resp, err := server.app.Test(post("/query", "text/plain", `{"nodeId":"q","context":"x","top":0}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(embedder.Calls()).To(BeEmpty())
		})
	})

	Describe("POST /query_text", func() {
		It("returns sources with stored text", func() {
			driver.Matches = []vector.Match{
				{ID: "n1", Score: 0.95, Metadata: vector.Metadata{Text: "first"}},
			}

			resp, err := server.app.Test(post("/query_text", "text/plain", `{"nodeId":"q","context":"x"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`[{"sources":"[[^n1]]","answer":"first"}]`))
		})

		It("returns an empty list without matches", func() {
			resp, err := server.app.Test(post("/pinecone/query_text", "text/plain", `{"nodeId":"q","context":"x"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(readBody(resp)).To(MatchJSON(`[]`))
		})
	})

	Describe("POST /delete", func() {
		It("deletes without embedding", func() {
			resp, err := server.app.Test(post("/delete", "text/plain", `{"nodeId":"abc"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(driver.Deletes()).To(Equal([]string{"abc"}))
			Expect(embedder.Calls()).To(BeEmpty())
		})
	})

	Describe("POST /purge", func() {
		It("is not implemented", func() {
			for _, path := range []string{"/purge", "/pinecone/purge"} {
				resp, err := server.app.Test(post(path, "text/plain", `{}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
				Expect(readBody(resp)).To(Equal("Not yet implemented"))
			}
		})
	})

	Describe("POST /inlinerefs", func() {
		It("lists inline refs as Tana Paste without embedding", func() {
			resp, err := server.app.Test(post("/inlinerefs", "text/plain",
				`{"nodeId":"abc","context":"Call [[Alice]] re [[^x9Qz]]"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get(fiber.HeaderContentType)).To(HavePrefix(fiber.MIMETextPlain))
			Expect(readBody(resp)).To(Equal("- inline ref::[[Alice]]\n- inline ref::[[^x9Qz]]\n"))
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("answers 204 when the context has no refs", func() {
			resp, err := server.app.Test(post("/inlinerefs", "text/plain", `{"nodeId":"abc","context":"plain"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))
		})

		It("requires a node id", func() {
			resp, err := server.app.Test(post("/inlinerefs", "text/plain", `{"context":"[[A]]"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /log", func() {
		It("accepts any body", func() {
			resp, err := server.app.Test(post("/log", "text/plain", "anything at all"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})
	})

	Describe("credential headers", func() {
		var recorder *recordingTranslator

		BeforeEach(func() {
			recorder = &recordingTranslator{}
			var err error
			server, err = NewServer(Config{LocalService: true}, recorder, tanalogger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		It("fills keys the payload leaves out", func() {
			req := post("/upsert", "text/plain", `{"nodeId":"abc"}`)
			req.Header.Set(headerOpenAIKey, "sk-header")
			req.Header.Set(headerPineconeKey, "pc-header")

			_, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.last.Overrides.OpenAIKey).To(Equal("sk-header"))
			Expect(recorder.last.Overrides.PineconeKey).To(Equal("pc-header"))
		})

		It("prefers payload keys over headers", func() {
			req := post("/query", "text/plain", `{"nodeId":"abc","openai":"sk-payload"}`)
			req.Header.Set(headerOpenAIKey, "sk-header")

			_, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.last.Overrides.OpenAIKey).To(Equal("sk-payload"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			var err error
			server, err = NewServer(Config{Verifier: staticVerifier{token: "good"}}, newService(), tanalogger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves the status route open", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("rejects requests without a token", func() {
			resp, err := server.app.Test(post("/upsert", "text/plain", `{"nodeId":"abc"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(driver.Upserts()).To(BeEmpty())
		})

		It("rejects an invalid token", func() {
			req := post("/upsert", "text/plain", `{"nodeId":"abc"}`)
			req.Header.Set("Authorization", "Bearer bad")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})

		It("accepts a valid token", func() {
			req := post("/upsert", "text/plain", `{"nodeId":"abc"}`)
			req.Header.Set("Authorization", "Bearer good")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(driver.Upserts()).To(HaveLen(1))
		})
	})

	Describe("CORS", func() {
		It("allows the Tana origin", func() {
			req, err := http.NewRequest(http.MethodOptions, "/query", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", DefaultCORSOrigin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal(DefaultCORSOrigin))
		})
	})

	Describe("configuration routes", func() {
		var cfger *config.Configer

		BeforeEach(func() {
			var err error
			cfger, err = config.NewConfiger(GinkgoT().TempDir())
			Expect(err).NotTo(HaveOccurred())

			server, err = NewServer(Config{LocalService: true, Settings: cfger}, newService(), tanalogger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the configuration with secrets masked", func() {
			Expect(cfger.SetConfigValue("embedding.api_key", "sk-secret")).To(Succeed())

			req, err := http.NewRequest(http.MethodGet, "/configuration", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var values map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&values)).To(Succeed())
			Expect(values).To(HaveKeyWithValue("embedding.api_key", "********"))
			Expect(values).To(HaveKeyWithValue("server.port", "4000"))
		})

		It("persists posted values", func() {
			resp, err := server.app.Test(post("/configuration", "application/json", `{"vector_store.index":"notes","server.port":5000,"mcp.enabled":true}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.Index).To(Equal("notes"))
			Expect(cfg.Server.Port).To(Equal(uint(5000)))
			Expect(cfg.MCP.Enabled).To(BeTrue())
		})

		It("rejects unknown keys without writing", func() {
			resp, err := server.app.Test(post("/configuration", "application/json", `{"vector_store.index":"notes","nope":"x"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.Index).To(Equal("tana-helper"))
		})

		It("rejects invalid values", func() {
			resp, err := server.app.Test(post("/configuration", "application/json", `{"server.port":"many"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("MCP mount", func() {
		It("forwards /mcp to the handler", func() {
			var err error
			server, err = NewServer(Config{
				LocalService: true,
				MCPHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusAccepted)
				}),
			}, newService(), tanalogger.Nop())
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(post("/mcp", "application/json", `{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		})

		It("is not mounted by default", func() {
			resp, err := server.app.Test(post("/mcp", "application/json", `{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})

var _ = Describe("statusFor", func() {
	It("maps operation errors to statuses", func() {
		Expect(statusFor(translator.ErrMissingNodeID)).To(Equal(fiber.StatusBadRequest))
		Expect(statusFor(fmt.Errorf("%w: top", translator.ErrInvalidRequest))).To(Equal(fiber.StatusBadRequest))
		Expect(statusFor(auth.ErrUnauthorized)).To(Equal(fiber.StatusUnauthorized))
		Expect(statusFor(fmt.Errorf("%w: x", vector.ErrEmbedding))).To(Equal(fiber.StatusBadGateway))
		Expect(statusFor(fmt.Errorf("%w: x", vector.ErrConnection))).To(Equal(fiber.StatusBadGateway))
		Expect(statusFor(errors.New("other"))).To(Equal(fiber.StatusInternalServerError))
	})
})
