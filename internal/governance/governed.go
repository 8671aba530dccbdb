package governance

import (
	"context"
	"log/slog"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/proxy"
	"github.com/myles1663/lancelot-sub000/internal/registry"
)

// GovernedProxy wraps the raw proxy with the classify, policy, receipt,
// and trust pipeline. It holds no per-request state; the sinks are the
// only shared mutable pieces.
type GovernedProxy struct {
	registry   *registry.Registry
	proxy      *proxy.Proxy
	classifier *Classifier
	policy     PolicyEngine // optional
	ledger     *TrustLedger // optional
	receipts   *ReceiptPipeline

	logger *slog.Logger
}

// NewGovernedProxy wires the governance pipeline. policy and ledger may be
// nil; the corresponding steps are then skipped.
func NewGovernedProxy(reg *registry.Registry, p *proxy.Proxy, classifier *Classifier,
	policy PolicyEngine, ledger *TrustLedger, receipts *ReceiptPipeline, logger *slog.Logger) *GovernedProxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &GovernedProxy{
		registry:   reg,
		proxy:      p,
		classifier: classifier,
		policy:     policy,
		ledger:     ledger,
		receipts:   receipts,
		logger:     logger.With("component", "governed"),
	}
}

// RegisterConnectorTiers copies every operation's default tier into the
// classifier, keyed by full capability id. Called once per connector at
// startup, after registry registration.
func (g *GovernedProxy) RegisterConnectorTiers(c connector.Connector) {
	for _, op := range c.Operations() {
		g.classifier.SetDefault(op.FullCapabilityID(), op.DefaultTier)
	}
}

// OperationTier resolves the registered default tier of one operation.
func (g *GovernedProxy) OperationTier(connectorID, operationID string) (connector.RiskTier, error) {
	op, err := g.registry.Operation(connectorID, operationID)
	if err != nil {
		return 0, err
	}
	if tier, ok := g.classifier.DefaultTier(op.FullCapabilityID()); ok {
		return tier, nil
	}
	return op.DefaultTier, nil
}

// ExecuteGoverned runs one operation through the full pipeline:
// classify, policy, execute, trust, receipt.
func (g *GovernedProxy) ExecuteGoverned(ctx context.Context, connectorID, operationID string,
	params map[string]interface{}) *connector.Response {

	c, err := g.registry.Get(connectorID)
	if err != nil {
		return connector.ErrorResponse(connectorID, operationID, connector.KindOf(err), "%v", err)
	}
	op, ok := c.Operation(operationID)
	if !ok {
		return connector.ErrorResponse(connectorID, operationID,
			connector.KindOperationNotFound, "connector %s has no operation %q", connectorID, operationID)
	}

	capability := op.FullCapabilityID()
	profile := g.classifier.Classify(capability, ScopeExternal, "")

	if g.policy != nil {
		decision := g.policy.Evaluate(ctx, Intent{
			Capability:  capability,
			ConnectorID: connectorID,
			OperationID: operationID,
			RiskLevel:   riskLevel(profile.Tier),
			Tier:        profile.Tier,
		})
		if !decision.Allow {
			g.logger.Warn("policy denied",
				"capability", capability, "tier", profile.Tier.String(), "reasons", decision.Reasons)
			resp := connector.ErrorResponse(connectorID, operationID,
				connector.KindPolicyDenied, "policy denied: %v", decision.Reasons)
			g.finish(profile, resp)
			return resp
		}
	}

	spec, err := c.Execute(operationID, params)
	if err != nil {
		resp := connector.ErrorResponse(connectorID, operationID, connector.KindOf(err), "%v", err)
		g.finish(profile, resp)
		return resp
	}

	resp := g.proxy.Execute(ctx, spec)
	g.finish(profile, resp)
	return resp
}

// finish updates trust and emits the receipt, attaching its id to the
// response.
func (g *GovernedProxy) finish(profile RiskProfile, resp *connector.Response) {
	if g.ledger != nil {
		if resp.Success {
			g.ledger.RecordSuccess(profile.Capability, ScopeExternal)
		} else {
			g.ledger.RecordFailure(profile.Capability, ScopeExternal)
		}
	}
	if g.receipts != nil {
		receipt := newReceipt(profile.Capability, profile.Tier, resp)
		resp.ReceiptID = receipt.ReceiptID
		g.receipts.Emit(receipt)
	}
}

// HandleRollback executes a rollback operation's counterpart bookkeeping:
// it records the rollback in the trust ledger under the original
// operation's capability.
func (g *GovernedProxy) HandleRollback(connectorID, operationID, scope string) error {
	op, err := g.registry.Operation(connectorID, operationID)
	if err != nil {
		return err
	}
	if g.ledger != nil {
		g.ledger.RecordRollback(op.FullCapabilityID(), scope)
	}
	g.logger.Info("rollback recorded",
		"connector", connectorID, "operation", operationID, "scope", scope)
	return nil
}
