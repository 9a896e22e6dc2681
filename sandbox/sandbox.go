// Package sandbox provides an in-memory stand-in for the pay2run
// platform API, for tests and offline development. It serves the
// management CRUD endpoints, the execute endpoint with 402 issuance,
// payment status polling, and a control endpoint to complete payments
// by hand. Payments are never verified against a chain and credentials
// are demo HS256 tokens: this is a test double, not the platform.
package sandbox

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/token"
)

// DefaultCredentialTTL bounds minted demo credentials.
const DefaultCredentialTTL = 5 * time.Minute

// Config configures a sandbox Server.
type Config struct {
	// APIKey authorizes management requests. Empty disables the check.
	APIKey string

	// SigningKey signs demo credentials. A random key is generated when
	// empty, which is fine unless tokens must survive restarts.
	SigningKey []byte

	// AutoComplete, when positive, marks every payment completed this
	// long after issuance, without a manual complete call. Zero keeps
	// payments pending until completed through the control endpoint.
	AutoComplete time.Duration

	// CredentialTTL bounds minted credentials. DefaultCredentialTTL
	// when zero.
	CredentialTTL time.Duration

	// Logger receives request and lifecycle logs. slog.Default when nil.
	Logger *slog.Logger
}

// Server is the in-memory platform stand-in.
type Server struct {
	apiKey        string
	signingKey    []byte
	autoComplete  time.Duration
	credentialTTL time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	actions  map[string]*actionRecord
	payments map[string]*paymentRecord

	engine *gin.Engine
}

// actionRecord is the full stored Action: the public projection plus
// the private fields the platform never returns.
type actionRecord struct {
	public    pay2run.ActionConfig
	targetURL string
	method    string
	headers   map[string]string
	secrets   map[string]string
	payment   pay2run.CreatorPaymentConfig
}

type paymentRecord struct {
	id        string
	actionID  string
	completed bool
	consumed  bool
	jwt       string
	createdAt time.Time
	details   pay2run.PaymentRequestDetails
}

// New creates a sandbox server. Use Handler to serve it, typically
// through net/http/httptest in tests.
func New(config Config) *Server {
	signingKey := config.SigningKey
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		_, _ = rand.Read(signingKey)
	}

	credentialTTL := config.CredentialTTL
	if credentialTTL <= 0 {
		credentialTTL = DefaultCredentialTTL
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		apiKey:        config.APIKey,
		signingKey:    signingKey,
		autoComplete:  config.AutoComplete,
		credentialTTL: credentialTTL,
		logger:        logger,
		now:           time.Now,
		actions:       make(map[string]*actionRecord),
		payments:      make(map[string]*paymentRecord),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests)

	managed := engine.Group("/v1/actions", s.requireAPIKey)
	managed.POST("", s.createAction)
	managed.GET("", s.listActions)
	managed.GET("/:id", s.getAction)
	managed.PATCH("/:id", s.updateAction)
	managed.DELETE("/:id", s.deleteAction)

	engine.POST("/v1/execute/:id", s.execute)
	engine.GET("/v1/payments/:id/status", s.paymentStatus)
	engine.POST("/sandbox/payments/:id/complete", s.completePayment)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving the sandbox API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) logRequests(c *gin.Context) {
	start := s.now()
	c.Next()
	s.logger.Info("sandbox request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.apiKey == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != "Bearer "+s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid api key"})
		return
	}
	c.Next()
}

func (s *Server) createAction(c *gin.Context) {
	var input pay2run.ActionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid action payload: " + err.Error()})
		return
	}
	if err := validateInput(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	descriptor, err := describePayment(input.Payment, input.Price, input.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	record := &actionRecord{
		public: pay2run.ActionConfig{
			ID:          "act_" + uuid.NewString(),
			Name:        input.Name,
			Description: input.Description,
			Payment:     *descriptor,
		},
		targetURL: input.TargetURL,
		method:    input.Method,
		headers:   input.Headers,
		secrets:   input.Secrets,
		payment:   input.Payment,
	}

	s.mu.Lock()
	s.actions[record.public.ID] = record
	s.mu.Unlock()

	s.logger.Info("action created", "action", record.public.ID, "name", record.public.Name)
	c.JSON(http.StatusCreated, record.public)
}

func (s *Server) listActions(c *gin.Context) {
	s.mu.Lock()
	actions := make([]pay2run.ActionConfig, 0, len(s.actions))
	for _, record := range s.actions {
		actions = append(actions, record.public)
	}
	s.mu.Unlock()

	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	c.JSON(http.StatusOK, actions)
}

func (s *Server) getAction(c *gin.Context) {
	s.mu.Lock()
	record, ok := s.actions[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "action not found"})
		return
	}
	c.JSON(http.StatusOK, record.public)
}

func (s *Server) updateAction(c *gin.Context) {
	var patch pay2run.ActionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid patch payload: " + err.Error()})
		return
	}
	if patch.Payment != nil {
		if err := patch.Payment.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.actions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "action not found"})
		return
	}

	if patch.Name != nil {
		record.public.Name = *patch.Name
	}
	if patch.Description != nil {
		record.public.Description = *patch.Description
	}
	if patch.TargetURL != nil {
		record.targetURL = *patch.TargetURL
	}
	if patch.Method != nil {
		record.method = *patch.Method
	}
	if patch.Headers != nil {
		record.headers = patch.Headers
	}
	if patch.Secrets != nil {
		record.secrets = patch.Secrets
	}
	if patch.Price != nil {
		record.public.Payment.Price = *patch.Price
	}
	if patch.Currency != nil {
		record.public.Payment.Currency = *patch.Currency
	}
	if patch.Payment != nil {
		record.payment = *patch.Payment
	}

	// Re-derive the public descriptor from the effective config.
	descriptor, err := describePayment(record.payment, record.public.Payment.Price, record.public.Payment.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	record.public.Payment = *descriptor

	c.JSON(http.StatusOK, record.public)
}

func (s *Server) deleteAction(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.actions[c.Param("id")]
	delete(s.actions, c.Param("id"))
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "action not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// execute serves both halves of the paid flow: an unauthenticated
// probe answers 402 with a fresh payment request, a request bearing a
// valid credential answers with the canned execution result.
func (s *Server) execute(c *gin.Context) {
	actionID := c.Param("id")

	s.mu.Lock()
	record, ok := s.actions[actionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "action not found"})
		return
	}

	auth := c.GetHeader("Authorization")
	if auth == "" {
		s.issuePaymentRequest(c, record)
		return
	}

	credential := strings.TrimPrefix(auth, "Bearer ")
	if credential == auth {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "malformed authorization header"})
		return
	}
	s.executeWithCredential(c, record, credential)
}

func (s *Server) issuePaymentRequest(c *gin.Context, record *actionRecord) {
	details, err := s.buildPaymentDetails(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	payment := &paymentRecord{
		id:        details.PaymentRequestID,
		actionID:  record.public.ID,
		createdAt: s.now(),
		details:   *details,
	}

	s.mu.Lock()
	s.payments[payment.id] = payment
	s.mu.Unlock()

	s.logger.Info("payment request issued",
		"action", record.public.ID,
		"payment", payment.id,
		"method", details.Method.Type,
	)
	c.JSON(http.StatusPaymentRequired, details)
}

func (s *Server) executeWithCredential(c *gin.Context, record *actionRecord, credential string) {
	claims := &token.Claims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid credential"})
		return
	}
	if claims.ActionID != record.public.ID {
		c.JSON(http.StatusForbidden, gin.H{"message": "credential issued for a different action"})
		return
	}

	s.mu.Lock()
	payment, ok := s.payments[claims.PaymentRequestID]
	if ok && payment.consumed {
		s.mu.Unlock()
		c.JSON(http.StatusForbidden, gin.H{"message": "credential already used"})
		return
	}
	if ok {
		payment.consumed = true
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"message": "unknown payment request"})
		return
	}

	var body any
	_ = c.ShouldBindJSON(&body)

	query := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	s.logger.Info("action executed", "action", record.public.ID, "payment", payment.id)
	c.JSON(http.StatusOK, gin.H{
		"actionId":   record.public.ID,
		"target":     record.method + " " + record.targetURL,
		"echo":       gin.H{"body": body, "query": query},
		"executedAt": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) paymentStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "payment request not found"})
		return
	}

	if !payment.completed && s.autoComplete > 0 && s.now().Sub(payment.createdAt) >= s.autoComplete {
		if err := s.completeLocked(payment); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
	}

	if !payment.completed {
		c.JSON(http.StatusOK, pay2run.PaymentStatus{Status: pay2run.PaymentPending})
		return
	}
	c.JSON(http.StatusOK, pay2run.PaymentStatus{Status: pay2run.PaymentCompleted, JWT: payment.jwt})
}

func (s *Server) completePayment(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "payment request not found"})
		return
	}
	if !payment.completed {
		if err := s.completeLocked(payment); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		s.logger.Info("payment completed", "payment", payment.id, "action", payment.actionID)
	}
	c.JSON(http.StatusOK, pay2run.PaymentStatus{Status: pay2run.PaymentCompleted, JWT: payment.jwt})
}

// completeLocked mints the credential for a payment. Callers hold s.mu.
func (s *Server) completeLocked(payment *paymentRecord) error {
	now := s.now().UTC()
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pay2run-sandbox",
			Subject:   payment.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.credentialTTL)),
		},
		ActionID:         payment.actionID,
		PaymentRequestID: payment.id,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return fmt.Errorf("failed to sign credential: %w", err)
	}

	payment.completed = true
	payment.jwt = signed
	return nil
}

// buildPaymentDetails derives the 402 body for an action from its
// creator payment config.
func (s *Server) buildPaymentDetails(record *actionRecord) (*pay2run.PaymentRequestDetails, error) {
	paymentRequestID := "pr_" + uuid.NewString()
	price := record.public.Payment.Price

	kind, err := record.payment.Kind()
	if err != nil {
		return nil, err
	}

	details := &pay2run.PaymentRequestDetails{PaymentRequestID: paymentRequestID}
	switch kind {
	case pay2run.NetworkEVM:
		uri, err := eip681URI(record.payment.EVM, price)
		if err != nil {
			return nil, err
		}
		details.Method = pay2run.PaymentMethodDetails{
			Type:   pay2run.PaymentMethodEIP681,
			EIP681: &pay2run.EIP681Details{URI: uri},
		}
	case pay2run.NetworkSolana:
		details.Method = pay2run.PaymentMethodDetails{
			Type:      pay2run.PaymentMethodSolanaPay,
			SolanaPay: &pay2run.SolanaPayDetails{URI: solanaPayURI(record.payment.Solana, price, record.public.Name)},
		}
	}

	if err := details.Validate(); err != nil {
		return nil, err
	}
	return details, nil
}

// Demo amount scales: 18 decimals for native EVM transfers, 6 for
// tokens (the USDC convention).
const (
	nativeDecimals = 18
	tokenDecimals  = 6
)

func eip681URI(config *pay2run.EVMPaymentConfig, price string) (string, error) {
	if config.Token != "" {
		amount, err := pay2run.AmountToBigInt(price, tokenDecimals)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ethereum:%s@%s/transfer?address=%s&uint256=%s",
			config.Token, config.ChainID, config.Recipient, amount), nil
	}

	amount, err := pay2run.AmountToBigInt(price, nativeDecimals)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ethereum:%s@%s?value=%s", config.Recipient, config.ChainID, amount), nil
}

func solanaPayURI(config *pay2run.SolanaPaymentConfig, price, label string) string {
	uri := fmt.Sprintf("solana:%s?amount=%s", config.Recipient, price)
	if config.SPLToken != "" {
		uri += "&spl-token=" + config.SPLToken
	}
	if label != "" {
		uri += "&label=" + url.QueryEscape(label)
	}
	return uri
}

func validateInput(input pay2run.ActionInput) error {
	switch {
	case input.Name == "":
		return fmt.Errorf("name is required")
	case input.TargetURL == "":
		return fmt.Errorf("targetUrl is required")
	case input.Method == "":
		return fmt.Errorf("method is required")
	case input.Price == "":
		return fmt.Errorf("price is required")
	case input.Currency == "":
		return fmt.Errorf("currency is required")
	}
	return input.Payment.Validate()
}

// describePayment projects a creator config into the public descriptor.
func describePayment(config pay2run.CreatorPaymentConfig, price, currency string) (*pay2run.PaymentDescriptor, error) {
	kind, err := config.Kind()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	descriptor := &pay2run.PaymentDescriptor{
		Network:  kind,
		Price:    price,
		Currency: currency,
	}
	switch kind {
	case pay2run.NetworkEVM:
		descriptor.Chain = config.EVM.ChainID
		descriptor.Token = config.EVM.Token
	case pay2run.NetworkSolana:
		descriptor.Cluster = config.Solana.Cluster
		descriptor.Token = config.Solana.SPLToken
	}
	return descriptor, nil
}
