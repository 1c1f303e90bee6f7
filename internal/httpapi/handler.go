package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"goa.design/llmgateway/internal/cache"
	"goa.design/llmgateway/internal/capability"
	"goa.design/llmgateway/internal/cost"
	"goa.design/llmgateway/internal/gwerrors"
	"goa.design/llmgateway/internal/logstore"
	"goa.design/llmgateway/internal/model"
	"goa.design/llmgateway/internal/retry"
	"goa.design/llmgateway/internal/routing"
	"goa.design/llmgateway/internal/streaming"
)

// attemptResult is the outcome of one dispatched attempt (unary or
// streaming), bundling what the retry loop and logger both need.
type attemptResult struct {
	response model.Response
	streamer model.Streamer
	err      error
}

// handleChatCompletions implements the full control flow from spec.md §2:
// C1 -> C2 -> C3 -> C4(via C5) -> C5 -> C7(lookup) -> C6 -> C8 ->
// {streaming: C9 loop | unary: parse} -> C11 -> C7(store) -> C12, with
// C10's retry loop re-entering at C6 on a retryable failure.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	env, err := normalizeRequest(r, s.cfg.ForceDebugMode) // C1
	if err != nil {
		writeError(w, "", err)
		return
	}
	requestID := env.Request.RequestID

	token := bearerToken(r)
	principalVal, err := s.principals.Resolve(ctx, token, env.RequestedModel()) // C2
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	messages, err := s.guardrail.Apply(ctx, principalVal.Org, env.Request.Messages) // C3
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	env.Request.Messages = messages

	requirements := requirementsFrom(env)
	requirements.IAMAllowedProviders = principalVal.APIKey.IAMAllowedProviders

	decision, err := s.route(ctx, env, requirements, principalVal) // C4 (inside C5) + C5
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	createdUnix := env.Request.ReceivedAt.Unix()
	loop := retry.NewLoop(env.NoFallback, env.RequestedProvider != "" && !env.IsAuto, s.cfg.MaxRetries)

	candidates := candidatesFrom(decision.Metadata.ProviderScores)
	mapping := decision.Mapping
	providerID := mapping.ProviderID

	w.Header().Set("x-request-id", requestID)

	for {
		start := time.Now()
		result, cached, cacheEntryUsage := s.dispatchOne(ctx, w, env, principalVal, mapping, requestID, createdUnix, decision)
		duration := time.Since(start)

		outcome := retry.Classify(result.err)
		if gerr, ok := gwerrors.As(result.err); ok && gerr.Kind == gwerrors.KindFilter {
			// Content filter is a terminal success, never retried
			// (spec.md §4.9/§4.10).
			outcome = retry.Outcome{Succeeded: true, ErrorType: model.ErrorTypeContentFilter}
		}

		terminal := outcome.Succeeded || !loop.ShouldRetry(outcome, candidates)
		loop.RecordAttempt(providerID, mapping.ModelName, outcome, terminal)

		s.reportKeyHealth(ctx, mapping.ModelName, providerID, outcome.Succeeded, duration)

		if outcome.Succeeded {
			if !env.Request.Stream {
				s.logUnarySuccess(ctx, requestID, env, principalVal, decision, mapping, result.response, duration, cached, cacheEntryUsage, loop)
				breakdown := s.computeCost(env, decision, mapping, cacheEntryUsage, false)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(toWireResponse(requestID, createdUnix, result.response, wireResponseEnv{
					RequestedModel:      env.RequestedModel(),
					RequestedProvider:   env.RequestedProvider,
					UsedModel:           decision.Metadata.SelectedModel,
					UsedProvider:        mapping.ProviderID,
					UnderlyingUsedModel: mapping.ModelName,
					Cost:                breakdown,
				}))
			}
			return
		}

		if terminal {
			s.logFailure(ctx, requestID, env, principalVal, decision, mapping, result.err, duration, loop)
			writeError(w, requestID, result.err)
			return
		}

		next, ok := loop.SelectNextProvider(providerID, candidates)
		if !ok {
			final := gwerrors.AllProvidersFailed(result.err)
			s.logFailure(ctx, requestID, env, principalVal, decision, mapping, final, duration, loop)
			writeError(w, requestID, final)
			return
		}
		s.logFailure(ctx, requestID, env, principalVal, decision, mapping, result.err, duration, loop)

		mapping = mappingFor(decision, next.ProviderID)
		providerID = mapping.ProviderID
	}
}

// route runs C5 (which internally applies C4 via capability.Eligible for
// every branch) according to the normalized model identifier.
func (s *Server) route(ctx context.Context, env normalizedEnvelope, req capability.Requirements, p model.Principal) (routing.Decision, error) {
	now := time.Now()

	stored, err := s.visibility.StoredKeyProviders(ctx, p.Org.ID)
	if err != nil {
		return routing.Decision{}, gwerrors.Internal(err)
	}
	visible := routing.VisibleProviders(p.Project.Mode, stored, s.envPoolProviders)

	if env.IsCustom {
		if !containsStr(visible, "custom") {
			return routing.Decision{}, gwerrors.InvalidParameters("organization has no configured custom provider")
		}
	}

	if env.IsAuto {
		return s.routing.SelectAuto(ctx, routing.AutoInput{
			Requirements:     req,
			VisibleProviders: visible,
			Now:              now,
		})
	}

	def, ok := s.catalog.ModelDefinition(env.RequestedModelID)
	if !ok {
		return routing.Decision{}, gwerrors.InvalidParameters("unknown model " + env.RequestedModelID)
	}

	if env.RequestedProvider != "" && env.RequestedProvider != "custom" {
		return s.routing.SelectDirect(ctx, routing.DirectInput{
			Def:          def,
			ProviderID:   env.RequestedProvider,
			Requirements: req,
			NoFallback:   env.NoFallback,
			Now:          now,
		})
	}

	return s.routing.SelectModelOnly(ctx, routing.ModelOnlyInput{
		Def:              def,
		Requirements:     req,
		VisibleProviders: visible,
		Now:              now,
	})
}

// dispatchOne performs one C6->C8[->C9] attempt against a single
// (provider, model) mapping. Only the unary path (dispatchUnary) does a C7
// cache lookup ahead of dispatch; the streaming path does not consult the
// cache. It writes the streaming response body directly when
// env.Request.Stream is set, returning an empty attemptResult.streamer in
// that case (the stream has already been fully drained into the client).
func (s *Server) dispatchOne(
	ctx context.Context,
	w http.ResponseWriter,
	env normalizedEnvelope,
	p model.Principal,
	mapping model.ProviderMapping,
	requestID string,
	createdUnix int64,
	decision routing.Decision,
) (attemptResult, bool, model.TokenUsage) {
	rc, err := s.providerCtx.Resolve(ctx, p.Org.ID, p.Project.Mode, mapping, env.Request) // C6
	if err != nil {
		return attemptResult{err: err}, false, model.TokenUsage{}
	}
	_ = rc // Endpoint/Credentials/Body recorded for logging/signing; see providerctx doc.

	if env.Request.Stream {
		return s.dispatchStreaming(ctx, w, env, p, mapping, requestID, createdUnix, decision)
	}
	return s.dispatchUnary(ctx, env, mapping)
}

func (s *Server) dispatchUnary(ctx context.Context, env normalizedEnvelope, mapping model.ProviderMapping) (attemptResult, bool, model.TokenUsage) {
	if s.cacheStore != nil {
		key := cache.UnaryKey(mapping.ProviderID, mapping.ModelName, env.Request)
		if entry, ok, _ := s.cacheStore.GetUnary(ctx, key); ok {
			return attemptResult{response: entry.Response}, true, entry.Usage
		}
	}

	resp, err := s.executor.Complete(ctx, mapping.ProviderID, env.Request)
	if err != nil {
		return attemptResult{err: err}, false, model.TokenUsage{}
	}
	if isEmptyResponse(resp) {
		return attemptResult{err: gwerrors.FetchFailed(errors.New("empty upstream response"))}, false, model.TokenUsage{}
	}

	if s.cacheStore != nil && resp.StopReason != "" {
		key := cache.UnaryKey(mapping.ProviderID, mapping.ModelName, env.Request)
		_ = s.cacheStore.PutUnary(ctx, key, model.UnaryCacheEntry{Response: resp, Usage: resp.Usage}, time.Hour)
	}
	return attemptResult{response: resp}, false, resp.Usage
}

func (s *Server) dispatchStreaming(
	ctx context.Context,
	w http.ResponseWriter,
	env normalizedEnvelope,
	p model.Principal,
	mapping model.ProviderMapping,
	requestID string,
	createdUnix int64,
	decision routing.Decision,
) (attemptResult, bool, model.TokenUsage) {
	sw, err := newSSEWriter(w)
	if err != nil {
		return attemptResult{err: gwerrors.Internal(err)}, false, model.TokenUsage{}
	}
	go sw.runKeepalive()
	defer sw.stop()

	st, err := s.executor.Stream(ctx, mapping.ProviderID, env.Request)
	if err != nil {
		sw.writeError(err, "")
		sw.writeDone()
		return attemptResult{err: err}, false, model.TokenUsage{}
	}
	defer st.Close()

	healer := env.Request.ResponseFormat != nil &&
		(env.Request.ResponseFormat.Type == model.ResponseFormatJSONObject || env.Request.ResponseFormat.Type == model.ResponseFormatJSONSchema)

	var contentBuf strings.Builder
	var toolBuf []model.ToolUsePart
	var usage model.TokenUsage
	var stopReason model.StopReason
	sawStop := false
	bufferLimit := s.cfg.MaxStreamingBufferBytes
	var bufferedBytes int64

	for {
		chunk, err := st.Recv()
		if err != nil {
			break
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			bufferedBytes += int64(len(chunk.Text))
			if bufferLimit > 0 && bufferedBytes > bufferLimit {
				sw.writeError(gwerrors.BufferOverflow(bufferLimit), "")
				sw.writeDone()
				return attemptResult{err: gwerrors.BufferOverflow(bufferLimit)}, false, usage
			}
			contentBuf.WriteString(chunk.Text)
			if !healer {
				if wc, ok := toStreamChunk(requestID, createdUnix, mapping.ModelName, chunk); ok {
					sw.writeChunk(wc)
				}
			}
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				bufferedBytes += int64(len(chunk.ToolCall.Input))
				if bufferLimit > 0 && bufferedBytes > bufferLimit {
					sw.writeError(gwerrors.BufferOverflow(bufferLimit), "")
					sw.writeDone()
					return attemptResult{err: gwerrors.BufferOverflow(bufferLimit)}, false, usage
				}
				toolBuf = append(toolBuf, *chunk.ToolCall)
			}
		case model.ChunkTypeToolCallDelta:
			if wc, ok := toStreamChunk(requestID, createdUnix, mapping.ModelName, chunk); ok {
				sw.writeChunk(wc)
			}
		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage = accumulate(usage, *chunk.UsageDelta)
			}
		case model.ChunkTypeStop:
			stopReason = chunk.StopReason
			sawStop = true
		}
	}

	if !sawStop {
		// Stream ended without an explicit stop event: heal by treating it
		// as a length-truncated finish (spec.md §4.13).
		stopReason = model.StopReasonLength
	}
	resp := model.Response{
		Content:    []model.Part{model.TextPart{Text: contentBuf.String()}},
		ToolCalls:  toolBuf,
		Usage:      usage,
		StopReason: stopReason,
	}
	if isEmptyResponse(resp) {
		sw.writeError(gwerrors.FetchFailed(errors.New("empty upstream response")), "")
		sw.writeDone()
		return attemptResult{err: gwerrors.FetchFailed(errors.New("empty upstream response"))}, false, model.TokenUsage{}
	}

	if healer {
		healResult := streaming.RepairJSON(contentBuf.String())
		chunk := wireStreamChunk{
			ID: requestID, Object: "chat.completion.chunk", Created: createdUnix, Model: mapping.ModelName,
			Choices: []wireChunkChoice{{Delta: wireChunkDelta{Content: healResult.Content}}},
		}
		sw.writeChunk(chunk)
	}

	finish := finishReasonFor(resp.StopReason)
	sw.writeChunk(wireStreamChunk{
		ID: requestID, Object: "chat.completion.chunk", Created: createdUnix, Model: mapping.ModelName,
		Choices: []wireChunkChoice{{FinishReason: &finish}},
	})

	breakdown := s.computeCost(env, decision, mapping, resp.Usage, false)
	sw.writeChunk(finalUsageChunk(requestID, createdUnix, mapping.ModelName, toWireUsage(resp.Usage, breakdown)))
	sw.writeDone()

	s.logUnarySuccess(ctx, requestID, env, p, decision, mapping, resp, 0, false, resp.Usage, nil)
	return attemptResult{response: resp}, false, resp.Usage
}

func accumulate(acc, delta model.TokenUsage) model.TokenUsage {
	acc.InputTokens += delta.InputTokens
	acc.OutputTokens += delta.OutputTokens
	acc.TotalTokens += delta.TotalTokens
	acc.CacheReadTokens += delta.CacheReadTokens
	acc.CacheWriteTokens += delta.CacheWriteTokens
	acc.ReasoningTokens += delta.ReasoningTokens
	return acc
}

// isEmptyResponse implements spec.md §7's "empty response" reclassification:
// a successful upstream finish with zero content/tokens/tool-calls,
// excluding safety finishes.
func isEmptyResponse(resp model.Response) bool {
	if resp.StopReason == model.StopReasonContentFilter {
		return false
	}
	if len(resp.ToolCalls) > 0 {
		return false
	}
	if resp.Usage.TotalTokens > 0 {
		return false
	}
	for _, p := range resp.Content {
		if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
			return false
		}
	}
	return true
}

func candidatesFrom(scores []model.ProviderScore) []retry.Candidate {
	out := make([]retry.Candidate, 0, len(scores))
	for _, s := range scores {
		out = append(out, retry.Candidate{ProviderID: s.ProviderID, Score: s})
	}
	return out
}

// mappingFor resolves the full provider mapping for a retry-selected
// candidate. Candidates only carry a provider id (model.ProviderScore has
// no model field), so this assumes the fallback stays on the model
// definition the initial decision resolved (true for direct/model-only
// routing; the auto branch only ever fans out across providers of a single
// selected model too, per spec.md §4.5a's "pool is the pre-filtered
// eligible set for the chosen model").
func mappingFor(decision routing.Decision, providerID string) model.ProviderMapping {
	if m, ok := decision.Model.ProviderMapping(providerID); ok {
		return m
	}
	return decision.Mapping
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

func (env normalizedEnvelope) RequestedModel() string {
	if env.RequestedProvider != "" {
		return env.RequestedProvider + "/" + env.RequestedModelID
	}
	return env.RequestedModelID
}

func (s *Server) reportKeyHealth(ctx context.Context, modelID, providerID string, succeeded bool, d time.Duration) {
	if s.health == nil {
		return
	}
	_ = cost.ReportKeyHealth(ctx, s.health, modelID, providerID, succeeded, float64(d.Milliseconds()))
}

func (s *Server) computeCost(env normalizedEnvelope, decision routing.Decision, mapping model.ProviderMapping, usage model.TokenUsage, canceled bool) cost.Breakdown {
	return cost.Compute(cost.Input{
		Usage:                 usage,
		UpstreamPromptTokensReported: usage.InputTokens > 0,
		Mapping:               mapping,
		Discount:              mapping.Discount,
		RetentionLevel:        model.RetentionLevelNone,
		Canceled:              canceled,
		BillCancelledRequests: s.cfg.ShouldBillCancelledRequests,
		WebSearchWasActive:    env.WebSearchTool,
	})
}

func (s *Server) logUnarySuccess(
	ctx context.Context,
	requestID string,
	env normalizedEnvelope,
	p model.Principal,
	decision routing.Decision,
	mapping model.ProviderMapping,
	resp model.Response,
	duration time.Duration,
	cached bool,
	usage model.TokenUsage,
	loop *retry.Loop,
) {
	breakdown := s.computeCost(env, decision, mapping, usage, false)
	rec := logstore.Record{
		ID:              requestID,
		APIKeyID:        p.APIKey.ID,
		ProjectID:       p.Project.ID,
		OrgID:           p.Org.ID,
		RequestedModel:  env.RequestedModel(),
		UsedModel:       decision.Metadata.SelectedModel,
		Provider:        mapping.ProviderID,
		Usage:           usage,
		DurationMS:      float64(duration.Milliseconds()),
		Cost: map[string]float64{
			"total": breakdown.TotalCost, "input": breakdown.InputCost, "output": breakdown.OutputCost,
		},
		RoutingMetadata: decision.Metadata,
		FinishReason:    resp.StopReason,
		Streamed:        env.Request.Stream,
		Cached:          cached,
	}
	if loop != nil {
		rec.ID = loop.FinalLogID()
		rec.RoutingMetadata.AvailableProviders = decision.Metadata.AvailableProviders
	}
	s.logger.Log(ctx, rec)
}

func (s *Server) logFailure(
	ctx context.Context,
	requestID string,
	env normalizedEnvelope,
	p model.Principal,
	decision routing.Decision,
	mapping model.ProviderMapping,
	err error,
	duration time.Duration,
	loop *retry.Loop,
) {
	rec := logstore.Record{
		ID:             requestID,
		APIKeyID:       p.APIKey.ID,
		ProjectID:      p.Project.ID,
		OrgID:          p.Org.ID,
		RequestedModel: env.RequestedModel(),
		UsedModel:      decision.Metadata.SelectedModel,
		Provider:       mapping.ProviderID,
		DurationMS:     float64(duration.Milliseconds()),
		HasError:       true,
		ErrorDetails:   err.Error(),
		Streamed:       env.Request.Stream,
		Canceled:       errors.Is(err, context.Canceled),
	}
	if loop != nil {
		rec.RetriedByLogID = loop.FinalLogID()
		rec.Retried = true
	}
	s.logger.Log(ctx, rec)
}
