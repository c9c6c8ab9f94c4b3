package main

import (
	"testing"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/service"
)

func TestSigningFlowProvider(t *testing.T) {
	docuSeal := service.NewDocuSealService(&config.DocuSealConfig{})
	boldSign := service.NewBoldSignService(&config.BoldSignConfig{}, "")

	tests := []struct {
		provider string
		want     model.SigningProvider
	}{
		{config.SigningDocuSeal, model.ProviderDocuSeal},
		{config.SigningBoldSign, model.ProviderBoldSign},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			ref := signingFlow(tt.provider, docuSeal, boldSign).Reference(&model.AgreementResult{TemplateID: "doc-1"})
			if ref.Provider != tt.want {
				t.Errorf("Expected provider %s, got %s", tt.want, ref.Provider)
			}
			if ref.ProviderDocumentID() != "doc-1" {
				t.Errorf("Expected document id doc-1, got %s", ref.ProviderDocumentID())
			}
		})
	}
}
