package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arpanauts/biomapper-sub002/internal/logging"
	"github.com/arpanauts/biomapper-sub002/internal/security/cabundle"
	"github.com/arpanauts/biomapper-sub002/internal/storage/weaviate"
)

// Annotation is the structured record the LLM arbitration stage reasons
// over: title, IUPAC name, formula, synonyms, description for one candidate
// CID.
type Annotation struct {
	CID         string
	Certainty   float64
	Title       string
	IUPACName   string
	Formula     string
	Synonyms    []string
	Description string
}

// AnnotationFetcher fetches structured annotations for vector-search
// candidates, in parallel, rate-limited, omitting candidates whose fetch
// errors.
type AnnotationFetcher interface {
	FetchAnnotations(ctx context.Context, candidates []weaviate.Candidate, maxConcurrent int) ([]Annotation, error)
}

// PubChemFetcher fetches compound annotations from the PubChem PUG REST API.
// Modeled on the teacher's provider pattern (internal/services/mira_provider_ollama.go):
// a thin http.Client wrapper, no SDK, since PubChem has none in the corpus.
type PubChemFetcher struct {
	client  *http.Client
	baseURL string
	logger  logging.Logger
}

// NewPubChemFetcher builds a fetcher. ca may be nil to rely on the system
// trust store; when set, its pool is used for the outbound TLS handshake.
func NewPubChemFetcher(timeout time.Duration, ca *cabundle.Manager, logger logging.Logger) *PubChemFetcher {
	transport := http.DefaultTransport
	if ca != nil {
		transport = &http.Transport{TLSClientConfig: ca.TLSConfig()}
	}
	return &PubChemFetcher{
		client:  &http.Client{Timeout: timeout, Transport: transport},
		baseURL: "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
		logger:  logger,
	}
}

type pubchemProperties struct {
	PropertyTable struct {
		Properties []struct {
			CID           int    `json:"CID"`
			Title         string `json:"Title"`
			IUPACName     string `json:"IUPACName"`
			MolecularFormula string `json:"MolecularFormula"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

// FetchAnnotations fetches one candidate's properties per goroutine, bounded
// by a weighted semaphore at maxConcurrent in flight at once.
func (f *PubChemFetcher) FetchAnnotations(ctx context.Context, candidates []weaviate.Candidate, maxConcurrent int) ([]Annotation, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var mu sync.Mutex
	out := make([]Annotation, 0, len(candidates))

	var wg sync.WaitGroup
	for _, c := range candidates {
		c := c
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled; stop issuing new fetches
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			ann, err := f.fetchOne(ctx, c)
			if err != nil {
				f.logger.Warn("rag: annotation fetch failed, omitting candidate", "cid", c.Identifier, "error", err)
				return
			}
			mu.Lock()
			out = append(out, *ann)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out, nil
}

func (f *PubChemFetcher) fetchOne(ctx context.Context, c weaviate.Candidate) (*Annotation, error) {
	url := fmt.Sprintf("%s/compound/cid/%s/property/Title,IUPACName,MolecularFormula/JSON", f.baseURL, c.Identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubchem returned status %d", resp.StatusCode)
	}

	var parsed pubchemProperties
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode pubchem response: %w", err)
	}
	if len(parsed.PropertyTable.Properties) == 0 {
		return nil, fmt.Errorf("no properties returned for cid %s", c.Identifier)
	}
	p := parsed.PropertyTable.Properties[0]
	return &Annotation{
		CID: c.Identifier, Certainty: c.Certainty,
		Title: p.Title, IUPACName: p.IUPACName, Formula: p.MolecularFormula,
	}, nil
}
