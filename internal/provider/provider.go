// Package provider implements the capability providers that annotate clauses:
// simplification, entity recognition, and classification.
package provider

import (
	"context"

	"github.com/ppiankov/clausewise/internal/model"
)

// Simplifier rewrites legal text in plain language
type Simplifier interface {
	Name() string
	Simplify(ctx context.Context, text string) (string, error)
}

// EntityRecognizer finds categorized entities. Entity spans are offsets into text.
type EntityRecognizer interface {
	Name() string
	RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error)
}

// Classifier assigns a label from the label set of the scope
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string, scope model.Scope) (string, error)
}

// Provider serves all three capabilities. The rules and LLM providers and
// every decorator implement it.
type Provider interface {
	Simplifier
	EntityRecognizer
	Classifier
}

// Fingerprinter is implemented by providers whose answers depend on more
// than their name, such as the model or the label set. The fingerprint is
// part of every cache key, so changing either invalidates old answers.
type Fingerprinter interface {
	Fingerprint() string
}

func fingerprint(p Provider) string {
	if f, ok := p.(Fingerprinter); ok {
		return f.Fingerprint()
	}
	return p.Name()
}

// Set holds the provider chosen for each capability
type Set struct {
	Simplifier       Simplifier
	EntityRecognizer EntityRecognizer
	Classifier       Classifier
}

// Document labels
const (
	LabelNDA                  = "nda"
	LabelLeaseAgreement       = "lease_agreement"
	LabelEmploymentContract   = "employment_contract"
	LabelServiceAgreement     = "service_agreement"
	LabelSalesContract        = "sales_contract"
	LabelLicenseAgreement     = "license_agreement"
	LabelPartnershipAgreement = "partnership_agreement"
	LabelOther                = "other"
)

// Clause labels
const (
	LabelPayment         = "payment"
	LabelDelivery        = "delivery"
	LabelTermination     = "termination"
	LabelConfidentiality = "confidentiality"
	LabelLiability       = "liability"
	LabelGoverningLaw    = "governing_law"
	LabelTerm            = "term"
	LabelDefinitions     = "definitions"
	LabelObligation      = "obligation"
	LabelGeneral         = "general"
)
