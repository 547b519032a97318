package vectorstore

import (
	"fmt"
	"strings"

	"flowgraph-mcp/backend/pkg/models"
)

// DocumentVariant picks the variant for a document: requirement documents
// (doc_type starting with "brd") are brd_summary, everything else is a guideline.
func DocumentVariant(docType string) models.ContentVariant {
	if strings.HasPrefix(strings.ToLower(docType), "brd") {
		return models.VariantBRDSummary
	}
	return models.VariantGuidelineSummary
}

func documentRecord(d *models.Document) *models.EmbeddingRecord {
	title := strings.TrimSpace(d.Title)
	body := strings.TrimSpace(d.Body)
	return &models.EmbeddingRecord{
		SourceType: models.SourceTypeDocument,
		SourceID:   d.ID,
		ServiceID:  d.ServiceID,
		FlowID:     d.FlowID,
		Variant:    DocumentVariant(d.DocType),
		Content:    strings.TrimSpace(strings.Trim(title+". "+body, ". ")),
	}
}

func flowRecord(f *models.Flow) *models.EmbeddingRecord {
	parts := []string{fmt.Sprintf("Flow %s (%s)", f.Slug, f.Name)}
	if goal := strings.TrimSpace(f.Goal); goal != "" {
		parts = append(parts, "Goal: "+goal)
	}
	if notes := strings.TrimSpace(f.Notes); notes != "" {
		parts = append(parts, "Notes: "+notes)
	}
	id := f.ID
	return &models.EmbeddingRecord{
		SourceType: models.SourceTypeFlow,
		SourceID:   f.ID,
		ServiceID:  f.ServiceID,
		FlowID:     &id,
		Variant:    models.VariantFlowSummary,
		Content:    strings.TrimSpace(strings.Trim(strings.Join(parts, ". "), ". ")),
	}
}

func stepRecord(s *models.Step) *models.EmbeddingRecord {
	t := strings.TrimSpace
	content := fmt.Sprintf(
		"Step %s (%s): purpose=%s. User_actions=%s. Inputs=%s. Outputs=%s. Conditions=%s. UI=%s. Notes=%s",
		t(s.Slug), t(s.Name), t(s.Purpose), t(s.UserActions), t(s.DataInputs),
		t(s.DataOutputs), t(s.Conditions), t(s.UISummary), t(s.Notes),
	)
	id := s.ID
	return &models.EmbeddingRecord{
		SourceType: models.SourceTypeStep,
		SourceID:   s.ID,
		ServiceID:  s.ServiceID,
		FlowID:     s.FlowID,
		StepID:     &id,
		Variant:    models.VariantStepDescription,
		Content:    strings.TrimSpace(content),
	}
}

func componentRecord(c *models.UIComponent) *models.EmbeddingRecord {
	content := fmt.Sprintf(
		"Component %s (%s): type=%s. Description=%s. Usage=%s. Process_code=%s",
		c.Key, c.Name, c.Type,
		strings.TrimSpace(c.Description), strings.TrimSpace(c.UsageNotes), strings.TrimSpace(c.ProcessCode),
	)
	return &models.EmbeddingRecord{
		SourceType: models.SourceTypeComponent,
		SourceID:   c.ID,
		Variant:    models.VariantComponentDescription,
		Content:    strings.TrimSpace(content),
	}
}
