package chroma

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"

	"raid-mail-agent/internal/conversation/domain"
)

const collectionName = "club_applications"

// Options selects the Chroma Cloud database and the Gemini key used for embeddings
type Options struct {
	APIKey       string
	Tenant       string
	Database     string
	GeminiAPIKey string
}

// ApplicationIndex is a semantic index over club applications, keyed by email
type ApplicationIndex struct {
	collection chroma.Collection
}

func NewApplicationIndex(ctx context.Context, opts Options) (*ApplicationIndex, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}
	if opts.GeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", opts.GeminiAPIKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	switch {
	case opts.Database != "" && opts.Tenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
			chroma.WithDatabaseAndTenant(opts.Database, opts.Tenant),
		)
	case opts.Tenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
			chroma.WithTenant(opts.Tenant),
		)
	default:
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(opts.APIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, collectionName, chroma.WithEmbeddingFunctionCreate(embedFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] Initialized collection: %s", collectionName)
	return &ApplicationIndex{collection: collection}, nil
}

// Index upserts the application document, replacing an earlier version
func (c *ApplicationIndex) Index(ctx context.Context, app *domain.Application) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"email":     app.Email,
		"name":      app.Name,
		"major":     app.Major,
		"thread_id": app.ThreadID,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(app.Email)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(applicationDocument(app)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert application embedding: %w", err)
	}
	return nil
}

// Search returns the emails of the applications closest to query
func (c *ApplicationIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return []string{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return []string{}, nil
	}
	emails := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		emails = append(emails, string(id))
	}
	return emails, nil
}

// applicationDocument is the text embedded for an application
func applicationDocument(app *domain.Application) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nMajor: %s\nMotivation: %s\n", app.Name, app.Major, app.Motivation)
	if len(app.DesiredActivities) > 0 {
		fmt.Fprintf(&b, "Interested in: %s\n", strings.Join(app.DesiredActivities, ", "))
	}
	for _, entry := range app.Conversation {
		if entry.Sender == domain.SenderUser {
			b.WriteString("\n")
			b.WriteString(entry.Body)
		}
	}
	text := b.String()
	// embedding models have token limits
	if len(text) > 10000 {
		text = text[:10000]
	}
	return text
}
