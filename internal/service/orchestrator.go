package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

// CheckoutStatusSubject carries out-of-band checkout results from embedded
// checkout surfaces back into the orchestrator.
const CheckoutStatusSubject = "escrow.checkout.status"

// BeginInput starts a purchase flow for a property or an investment.
type BeginInput struct {
	PropertyID    string         `json:"propertyId,omitempty"`
	InvestmentID  string         `json:"investmentId,omitempty"`
	BuyerID       string         `json:"buyerId"`
	BuyerEmail    string         `json:"buyerEmail"`
	SellerID      string         `json:"sellerId,omitempty"`
	Amount        int64          `json:"amount"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	// OneClick skips the review step and initializes payment immediately.
	OneClick bool `json:"oneClick,omitempty"`
}

// Session is one buyer's walk through the purchase wizard. All mutation
// goes through the orchestrator, which serializes access.
type Session struct {
	ID           string               `json:"id"`
	EscrowID     string               `json:"escrowId,omitempty"`
	PropertyID   string               `json:"propertyId,omitempty"`
	InvestmentID string               `json:"investmentId,omitempty"`
	BuyerID      string               `json:"buyerId"`
	BuyerEmail   string               `json:"buyerEmail"`
	SellerID     string               `json:"sellerId,omitempty"`
	Amount       int64                `json:"amount"`
	Fee          int64                `json:"fee"`
	TotalAmount  int64                `json:"totalAmount"`
	Method       models.PaymentMethod `json:"paymentMethod"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	PaymentID    string               `json:"paymentId,omitempty"`
	CheckoutURL  string               `json:"checkoutUrl,omitempty"`
	State        models.WizardState   `json:"state"`

	initializing bool
}

// Orchestrator drives the escrow purchase wizard:
//
//	Review -> Payment -> Confirmation
//
// It owns the in-memory sessions, the callback registry mapping active
// checkout references to sessions, and the out-of-band checkout status
// subscription. The pending store makes an abandoned checkout resumable;
// the escrow repository stays the system of record.
type Orchestrator struct {
	escrow   *EscrowService
	verifier *VerificationService
	store    interfaces.PendingStore
	provider interfaces.PaymentProvider
	events   interfaces.EventPublisher

	mu       sync.Mutex
	sessions map[string]*Session
	byRef    map[string]string // active checkout reference -> session id
}

func NewOrchestrator(
	escrow *EscrowService,
	verifier *VerificationService,
	store interfaces.PendingStore,
	paymentProvider interfaces.PaymentProvider,
	events interfaces.EventPublisher,
) *Orchestrator {
	return &Orchestrator{
		escrow:   escrow,
		verifier: verifier,
		store:    store,
		provider: paymentProvider,
		events:   events,
		sessions: make(map[string]*Session),
		byRef:    make(map[string]string),
	}
}

// Begin opens a purchase session. If the pending store holds a processing
// attempt for the same escrow, property or investment, the session resumes
// in the payment step with the stored checkout reference instead of
// starting a new attempt.
func (o *Orchestrator) Begin(ctx context.Context, input BeginInput) (*Session, error) {
	if input.BuyerID == "" {
		return nil, models.ErrBuyerRequired
	}
	if input.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if (input.PropertyID == "") == (input.InvestmentID == "") {
		return nil, models.ErrItemRequired
	}

	method := models.PaymentMethod(input.PaymentMethod)
	if method == "" {
		method = models.MethodPaystack
	}

	session := &Session{
		ID:           uuid.NewString(),
		PropertyID:   input.PropertyID,
		InvestmentID: input.InvestmentID,
		BuyerID:      input.BuyerID,
		BuyerEmail:   input.BuyerEmail,
		SellerID:     input.SellerID,
		Amount:       input.Amount,
		Fee:          models.EscrowFee(input.Amount),
		TotalAmount:  models.TotalDue(input.Amount),
		Method:       method,
		Metadata:     input.Metadata,
		State:        models.WizardState{Phase: models.PhaseIdle},
	}

	if pending := o.store.FindForItem(input.BuyerID, "", input.PropertyID, input.InvestmentID); pending != nil && pending.Status == models.PaymentProcessing {
		session.EscrowID = pending.EscrowID
		session.PaymentID = pending.PaymentID
		session.CheckoutURL = pending.CheckoutURL
		session.State = models.WizardState{Phase: models.PhaseAwaitingUserAction, CheckoutRef: pending.TxRef}
		o.mu.Lock()
		o.sessions[session.ID] = session
		o.byRef[pending.TxRef] = session.ID
		o.mu.Unlock()
		telemetry.Logger.Info("Resumed pending payment attempt",
			zap.String("session_id", session.ID),
			zap.String("escrow_id", pending.EscrowID),
			zap.String("tx_ref", pending.TxRef),
		)
		return session, nil
	}

	o.mu.Lock()
	o.sessions[session.ID] = session
	o.mu.Unlock()

	if input.OneClick {
		if err := o.ContinueToPayment(ctx, session.ID); err != nil {
			return session, err
		}
	}
	return session, nil
}

// Session returns a snapshot of a session by id.
func (o *Orchestrator) Session(id string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	session, ok := o.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

// ContinueToPayment advances a session from review: create the escrow
// transaction, then initialize a provider checkout. A second call while an
// initialization is outstanding is refused so one escrow never gets two
// provider references.
func (o *Orchestrator) ContinueToPayment(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	session, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return models.ErrSessionNotFound
	}
	if session.initializing {
		o.mu.Unlock()
		return models.ErrLaunchInFlight
	}
	if session.State.Phase == models.PhaseAwaitingUserAction || session.State.Terminal() {
		o.mu.Unlock()
		return nil
	}
	session.initializing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		session.initializing = false
		o.mu.Unlock()
	}()

	if session.Method != models.MethodPaystack {
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, FailReason: models.ErrUnsupportedMethod.Error()})
		return models.ErrUnsupportedMethod
	}

	if session.EscrowID == "" {
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseCreatingEscrow})
		tx, err := o.escrow.Create(ctx, CreateEscrowInput{
			PropertyID:    session.PropertyID,
			InvestmentID:  session.InvestmentID,
			BuyerID:       session.BuyerID,
			SellerID:      session.SellerID,
			Amount:        session.Amount,
			PaymentMethod: string(session.Method),
			Metadata:      session.Metadata,
		})
		if err != nil {
			o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, FailReason: err.Error()})
			return err
		}
		o.mu.Lock()
		session.EscrowID = tx.ID
		o.mu.Unlock()
	}

	o.transition(ctx, session, models.WizardState{Phase: models.PhaseInitializingPayment})

	attempt, err := o.InitializePayment(ctx, InitializeInput{
		EscrowID: session.EscrowID,
		Amount:   session.TotalAmount,
		Email:    session.BuyerEmail,
		Method:   session.Method,
		Metadata: session.Metadata,
	})
	if err != nil {
		// The escrow stays in place; the user can retry initialization
		// against the same escrow id.
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, FailReason: err.Error()})
		return err
	}

	o.mu.Lock()
	session.PaymentID = attempt.PaymentID
	session.CheckoutURL = attempt.CheckoutURL
	o.byRef[attempt.TxRef] = session.ID
	o.mu.Unlock()

	o.transition(ctx, session, models.WizardState{Phase: models.PhaseAwaitingUserAction, CheckoutRef: attempt.TxRef})
	return nil
}

// InitializeInput is one checkout initialization request against an
// already created escrow transaction.
type InitializeInput struct {
	EscrowID string
	Amount   int64
	Email    string
	Method   models.PaymentMethod
	Metadata map[string]any
}

// PaymentAttempt is the result of a checkout initialization.
type PaymentAttempt struct {
	PaymentID   string `json:"paymentId"`
	TxRef       string `json:"txRef"`
	CheckoutURL string `json:"checkoutUrl"`
}

// InitializePayment obtains a provider checkout for an existing escrow and
// persists the pending attempt. The escrow id is a hard precondition. A
// stored processing attempt for the same escrow is returned as is instead
// of initializing a duplicate.
func (o *Orchestrator) InitializePayment(ctx context.Context, input InitializeInput) (*PaymentAttempt, error) {
	if input.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if input.Method != "" && input.Method != models.MethodPaystack {
		return nil, models.ErrUnsupportedMethod
	}

	tx, err := o.escrow.Get(ctx, input.EscrowID)
	if err != nil {
		return nil, err
	}

	if pending := o.store.FindForItem(tx.BuyerID, tx.ID, "", ""); pending != nil && pending.Status == models.PaymentProcessing {
		return &PaymentAttempt{
			PaymentID:   pending.PaymentID,
			TxRef:       pending.TxRef,
			CheckoutURL: pending.CheckoutURL,
		}, nil
	}

	paymentID := "PAY-" + uuid.NewString()
	txRef := fmt.Sprintf("ESCROW-%d-%s", time.Now().Unix(), uuid.NewString()[:8])

	result, err := o.provider.Initialize(ctx, interfaces.InitializeRequest{
		Amount:    input.Amount,
		Email:     input.Email,
		Reference: txRef,
		Currency:  tx.Currency,
		Metadata: map[string]any{
			"paymentType": "escrow",
			"relatedEntity": map[string]any{
				"type":     string(tx.EntityType),
				"id":       tx.ID,
				"metadata": input.Metadata,
			},
		},
	})
	if err != nil {
		telemetry.ProviderInitializations.WithLabelValues("error").Inc()
		return nil, err
	}
	telemetry.ProviderInitializations.WithLabelValues("ok").Inc()

	// The provider may rewrite the reference; its copy wins.
	if result.Reference != "" {
		txRef = result.Reference
	}

	o.store.Save(models.PendingPayment{
		EscrowID:      tx.ID,
		PaymentID:     paymentID,
		TxRef:         txRef,
		BuyerID:       tx.BuyerID,
		PropertyID:    tx.PropertyID,
		InvestmentID:  tx.InvestmentID,
		PaymentMethod: models.MethodPaystack,
		Status:        models.PaymentProcessing,
		CheckoutURL:   result.AuthorizationURL,
	})

	telemetry.Logger.Info("Payment initialized",
		zap.String("escrow_id", tx.ID),
		zap.String("payment_id", paymentID),
		zap.String("tx_ref", txRef),
	)

	return &PaymentAttempt{
		PaymentID:   paymentID,
		TxRef:       txRef,
		CheckoutURL: result.AuthorizationURL,
	}, nil
}

// HandleProviderSuccess is the provider SDK's success callback. The
// reference the provider reports takes precedence over the one the client
// generated. Duplicate delivery of the same success is harmless: the
// verification path is idempotent.
func (o *Orchestrator) HandleProviderSuccess(ctx context.Context, providerRef string) error {
	o.mu.Lock()
	var session *Session
	if sessionID, ok := o.byRef[providerRef]; ok {
		session = o.sessions[sessionID]
	} else {
		// The provider rewrote the reference; match through the pending
		// store instead.
		if pending := findByRef(o.store.Entries(), providerRef); pending != nil {
			for _, s := range o.sessions {
				if s.EscrowID == pending.EscrowID {
					session = s
					break
				}
			}
		}
	}
	o.mu.Unlock()

	if session == nil {
		return o.verifyDetached(ctx, providerRef)
	}
	return o.verifySession(ctx, session, providerRef)
}

// HandleCheckoutMessage processes an out-of-band checkout status message.
// Messages for an escrow id with no active session are ignored, so a
// result intended for a different flow can never advance this one.
func (o *Orchestrator) HandleCheckoutMessage(ctx context.Context, data []byte) error {
	var msg models.CheckoutStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Logger.Warn("Dropping unparsable checkout status message", zap.Error(err))
		return nil
	}
	if msg.Type != models.CheckoutStatusType || msg.Payload.EscrowID == "" {
		return nil
	}

	o.mu.Lock()
	var session *Session
	for _, s := range o.sessions {
		if s.EscrowID == msg.Payload.EscrowID {
			session = s
			break
		}
	}
	o.mu.Unlock()

	if session == nil {
		telemetry.Logger.Info("Ignoring checkout status for inactive escrow",
			zap.String("escrow_id", msg.Payload.EscrowID),
		)
		return nil
	}

	switch msg.Payload.Status {
	case "success":
		ref := msg.Payload.Ref()
		if ref == "" {
			ref = session.State.CheckoutRef
		}
		return o.verifySession(ctx, session, ref)
	case "error":
		reason := msg.Payload.Message
		if reason == "" {
			reason = "checkout reported an error"
		}
		// The pending entry stays so the attempt can be retried.
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, CheckoutRef: session.State.CheckoutRef, FailReason: reason})
		return nil
	default:
		return nil
	}
}

// SubscribeCheckoutStatus wires the orchestrator to the checkout status
// subject.
func (o *Orchestrator) SubscribeCheckoutStatus(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(CheckoutStatusSubject, func(msg *nats.Msg) {
		if err := o.HandleCheckoutMessage(context.Background(), msg.Data); err != nil {
			telemetry.Logger.Error("Error handling checkout status message", zap.Error(err))
		}
	})
}

// Retry re-arms a failed session so the user can launch checkout again.
func (o *Orchestrator) Retry(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	session, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return models.ErrSessionNotFound
	}
	if session.State.Phase != models.PhaseFailed {
		o.mu.Unlock()
		return nil
	}
	ref := session.State.CheckoutRef
	session.State = models.WizardState{Phase: models.PhaseIdle}
	o.mu.Unlock()

	if ref != "" {
		// A checkout was already initialized; go straight back to it.
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseAwaitingUserAction, CheckoutRef: ref})
		return nil
	}
	return o.ContinueToPayment(ctx, sessionID)
}

// Close abandons the wizard. The backend escrow and the pending record are
// left untouched so the attempt can be resumed later.
func (o *Orchestrator) Close(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	session, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	if session.State.CheckoutRef != "" {
		delete(o.byRef, session.State.CheckoutRef)
	}
	delete(o.sessions, sessionID)
	telemetry.Logger.Info("Purchase session closed",
		zap.String("session_id", sessionID),
		zap.String("escrow_id", session.EscrowID),
	)
}

func (o *Orchestrator) verifySession(ctx context.Context, session *Session, reference string) error {
	o.mu.Lock()
	if session.State.Terminal() {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.transition(ctx, session, models.WizardState{Phase: models.PhaseVerifying, CheckoutRef: reference})

	status, err := o.verifier.Verify(ctx, session.EscrowID, session.PaymentID, reference)
	switch {
	case err != nil:
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, CheckoutRef: reference, FailReason: err.Error()})
		return err
	case status == models.PaymentCompleted:
		o.mu.Lock()
		delete(o.byRef, reference)
		o.mu.Unlock()
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseCompleted})
		return nil
	case status == models.PaymentProcessing:
		// Still settling; back to the payment step for a later manual verify.
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseAwaitingUserAction, CheckoutRef: reference})
		return nil
	default:
		o.transition(ctx, session, models.WizardState{Phase: models.PhaseFailed, CheckoutRef: reference, FailReason: "payment was not successful"})
		return nil
	}
}

// verifyDetached reconciles a success signal that arrived after the
// session was closed (or on another instance). The pending store still
// holds enough to settle the escrow.
func (o *Orchestrator) verifyDetached(ctx context.Context, reference string) error {
	pending := findByRef(o.store.Entries(), reference)
	if pending == nil {
		telemetry.Logger.Info("Ignoring success for unknown reference", zap.String("reference", reference))
		return nil
	}
	_, err := o.verifier.Verify(ctx, pending.EscrowID, pending.PaymentID, reference)
	return err
}

func (o *Orchestrator) transition(ctx context.Context, session *Session, next models.WizardState) {
	o.mu.Lock()
	prev := session.State
	// A terminal phase is final. A late delivery that raced with the one
	// that finished the flow must not reopen or re-fail it.
	if prev.Terminal() {
		o.mu.Unlock()
		return
	}
	session.State = next
	o.mu.Unlock()

	telemetry.StateTransitions.WithLabelValues(string(next.Phase)).Inc()
	telemetry.Logger.Info("Wizard state transition",
		zap.String("session_id", session.ID),
		zap.String("escrow_id", session.EscrowID),
		zap.String("from_state", string(prev.Phase)),
		zap.String("to_state", string(next.Phase)),
	)

	event := models.StateChangedEvent{
		EscrowID:      session.EscrowID,
		PaymentID:     session.PaymentID,
		State:         string(next.Phase),
		PreviousState: string(prev.Phase),
		Timestamp:     time.Now().UTC(),
	}
	key := session.EscrowID
	if key == "" {
		key = session.ID
	}
	if err := o.events.Publish(ctx, key, event); err != nil {
		telemetry.Logger.Error("Failed to publish state change",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

func findByRef(entries []models.PendingPayment, reference string) *models.PendingPayment {
	for _, entry := range entries {
		if entry.TxRef == reference {
			e := entry
			return &e
		}
	}
	return nil
}
