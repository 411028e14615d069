// Package indexerclient issues signed, receipt-bearing queries against
// an indexer's deployment endpoint and classifies the result into the
// closed response taxonomy the selection and reporting layers consume
// (spec §4.4).
package indexerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/graphprotocol/gateway-core/types"
)

// ErrorKind discriminates the closed indexer-response error taxonomy.
type ErrorKind int

const (
	ErrTimeout ErrorKind = iota
	ErrUnattestable
	ErrUnexpectedPayload
	ErrBlock
	ErrOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrUnattestable:
		return "unattestable_error"
	case ErrUnexpectedPayload:
		return "unexpected_payload"
	case ErrBlock:
		return "block_error"
	default:
		return "other"
	}
}

// QueryError is returned for every non-success classification. Which of
// Status/Block/Message are set depends on Kind: Status for
// ErrUnattestable, Block plus the raw error string in Message for
// ErrBlock, Message alone for ErrUnexpectedPayload and ErrOther, none
// for ErrTimeout.
type QueryError struct {
	Kind    ErrorKind
	Status  int
	Block   *BlockError
	Message string
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return "indexerclient: request timed out"
	case ErrUnattestable:
		return fmt.Sprintf("indexerclient: unattestable error, status %d", e.Status)
	case ErrUnexpectedPayload:
		return "indexerclient: unexpected payload shape"
	case ErrBlock:
		return fmt.Sprintf("indexerclient: block error: %+v", e.Block)
	default:
		return fmt.Sprintf("indexerclient: %s", e.Message)
	}
}

// Attestation is an indexer's signature over (requestCID, responseCID,
// deployment), certifying the query response it returned.
type Attestation struct {
	RequestCID  [32]byte `json:"requestCID"`
	ResponseCID [32]byte `json:"responseCID"`
	Deployment  [32]byte `json:"subgraphDeploymentID"`
	V           uint8    `json:"v"`
	R           [32]byte `json:"r"`
	S           [32]byte `json:"s"`
}

type indexerResponsePayload struct {
	GraphQLResponse *string      `json:"graphQLResponse"`
	Attestation     *Attestation `json:"attestation"`
	Error           *string      `json:"error"`
}

// Response is a successfully classified indexer answer.
type Response struct {
	Status      int
	Body        string
	Attestation *Attestation
}

// Client issues queries against indexer deployment endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client. httpClient may be nil, in which case
// http.DefaultClient is used; callers that need a request timeout
// should set httpClient.Timeout themselves (timeouts surface as
// ErrTimeout, see Query).
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Query issues a receipt-bearing POST against <indexerBaseURL>/subgraphs/id/<deployment hex>,
// classifying the result per spec §4.4.
func (c *Client) Query(ctx context.Context, indexerBaseURL string, deployment types.DeploymentId, query string, scalarReceiptHeader string) (*Response, *QueryError) {
	target, err := buildQueryURL(indexerBaseURL, deployment)
	if err != nil {
		return nil, &QueryError{Kind: ErrOther, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader([]byte(query)))
	if err != nil {
		return nil, &QueryError{Kind: ErrOther, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Scalar-Receipt", scalarReceiptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &QueryError{Kind: ErrTimeout}
		}
		return nil, &QueryError{Kind: ErrOther, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &QueryError{Kind: ErrUnattestable, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{Kind: ErrOther, Message: err.Error()}
	}

	var payload indexerResponsePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &QueryError{Kind: ErrUnexpectedPayload, Message: err.Error()}
	}

	if payload.GraphQLResponse == nil {
		if payload.Error != nil {
			if blockErr := CheckBlockError(*payload.Error); blockErr != nil {
				return nil, &QueryError{Kind: ErrBlock, Block: blockErr, Message: *payload.Error}
			}
			return nil, &QueryError{Kind: ErrOther, Message: *payload.Error}
		}
		return nil, &QueryError{Kind: ErrOther, Message: "GraphQL response not found"}
	}

	return &Response{
		Status:      resp.StatusCode,
		Body:        *payload.GraphQLResponse,
		Attestation: payload.Attestation,
	}, nil
}

func buildQueryURL(indexerBaseURL string, deployment types.DeploymentId) (string, error) {
	base, err := url.Parse(indexerBaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing indexer base url: %w", err)
	}
	rel := &url.URL{Path: fmt.Sprintf("subgraphs/id/%s", deployment.Hex())}
	return base.ResolveReference(rel).String(), nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
