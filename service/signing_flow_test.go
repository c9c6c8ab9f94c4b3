package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Kapo179/docuseal3/model"
)

// fakeSigningClient records calls and returns canned results. When release
// is set, CreateAgreement blocks until it is closed.
type fakeSigningClient struct {
	mu       sync.Mutex
	calls    int
	result   *model.AgreementResult
	err      error
	statuses []string
	statusIx int
	lastData model.SigningData
	release  chan struct{}
}

func (c *fakeSigningClient) CreateAgreement(ctx context.Context, data model.SigningData) (*model.AgreementResult, error) {
	c.mu.Lock()
	c.calls++
	c.lastData = data
	release := c.release
	c.mu.Unlock()

	if release != nil {
		<-release
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *fakeSigningClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeSigningClient) Status(ctx context.Context, id string) (*model.DocumentStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return &model.DocumentStatus{Status: "pending"}, nil
	}
	i := c.statusIx
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	c.statusIx++
	if c.statuses[i] == "error" {
		return nil, errors.New("lookup failed")
	}
	return &model.DocumentStatus{Status: c.statuses[i]}, nil
}

func TestGenerateAgreementTemplateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.SigningData)
		wantMsg string
	}{
		{"blank make", func(d *model.SigningData) { d.FormData.Make = "  " }, "Vehicle make and model are required"},
		{"blank model", func(d *model.SigningData) { d.FormData.Model = "" }, "Vehicle make and model are required"},
		{"empty buyer email", func(d *model.SigningData) { d.Buyer.Email = "" }, "Seller and buyer information is required"},
		{"whitespace seller name", func(d *model.SigningData) { d.Seller.Name = " \t" }, "Seller and buyer information is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSigningClient{result: &model.AgreementResult{TemplateID: "1", SigningURL: "u"}}
			flow := NewSigningFlow(model.ProviderDocuSeal, client)

			data := testSigningData()
			tt.mutate(&data)
			_, err := flow.GenerateAgreementTemplate(context.Background(), data)
			if err == nil || err.Error() != tt.wantMsg {
				t.Errorf("Expected %q, got %v", tt.wantMsg, err)
			}
			if client.calls != 0 {
				t.Errorf("Expected no provider call, got %d", client.calls)
			}
		})
	}
}

func TestGenerateAgreementTemplateResult(t *testing.T) {
	tests := []struct {
		name    string
		result  *model.AgreementResult
		wantErr bool
	}{
		{"complete", &model.AgreementResult{TemplateID: "1", SubmissionID: "2", SigningURL: "https://s"}, false},
		{"no submission id", &model.AgreementResult{TemplateID: "1", SigningURL: "https://s"}, false},
		{"no template id", &model.AgreementResult{SigningURL: "https://s"}, true},
		{"no signing url", &model.AgreementResult{TemplateID: "1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := NewSigningFlow(model.ProviderDocuSeal, &fakeSigningClient{result: tt.result})
			_, err := flow.GenerateAgreementTemplate(context.Background(), testSigningData())
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateAgreementTemplateTrims(t *testing.T) {
	client := &fakeSigningClient{result: &model.AgreementResult{TemplateID: "1", SigningURL: "u"}}
	flow := NewSigningFlow(model.ProviderDocuSeal, client)

	data := testSigningData()
	data.Seller.Email = "  alice@x.com "
	_, _ = flow.GenerateAgreementTemplate(context.Background(), data)
	if client.lastData.Seller.Email != "alice@x.com" {
		t.Errorf("Expected trimmed email, got %q", client.lastData.Seller.Email)
	}
}

func TestSigningFlowReference(t *testing.T) {
	result := &model.AgreementResult{TemplateID: "42", SubmissionID: "7"}

	ds := NewSigningFlow(model.ProviderDocuSeal, &fakeSigningClient{}).Reference(result)
	if ds.TemplateID != "42" || ds.ProviderDocumentID() != "42" || ds.Status != model.SigningPending {
		t.Errorf("Unexpected docuseal reference %+v", ds)
	}

	bs := NewSigningFlow(model.ProviderBoldSign, &fakeSigningClient{}).Reference(result)
	if bs.DocumentID != "42" || bs.ProviderDocumentID() != "42" {
		t.Errorf("Unexpected boldsign reference %+v", bs)
	}
}
