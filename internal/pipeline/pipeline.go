// Package pipeline wires the per-message processing chain: detection,
// resolution, pricing, filtering, scoring, and outcome admission, with
// sink publication at the end. One Handle call is one message; per-message
// failures are absorbed so a bad token never stalls the queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/cache"
	"github.com/moonwatch/signalrun/internal/deadtoken"
	"github.com/moonwatch/signalrun/internal/detect"
	"github.com/moonwatch/signalrun/internal/filter"
	"github.com/moonwatch/signalrun/internal/metrics"
	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/reputation"
	"github.com/moonwatch/signalrun/internal/resolve"
	"github.com/moonwatch/signalrun/internal/score"
	"github.com/moonwatch/signalrun/internal/sink"
)

// priceCacheTTL bounds how stale a cached live price may be.
const priceCacheTTL = 5 * time.Minute

// PriceSource is the live-price capability the pipeline needs; the provider
// fan-out engine is the production implementation.
type PriceSource interface {
	GetPrice(ctx context.Context, address string, chain models.ChainFamily) *models.PriceData
}

// Deps wires every stage. Optional stages (cache, dead-token detector,
// reputation, sinks, metrics, console) may be nil.
type Deps struct {
	Detector   *detect.Detector
	Resolver   *resolve.Resolver
	Engine     PriceSource
	Filter     *filter.Filter
	HDRB       *score.HDRBScorer
	Sentiment  score.SentimentAnalyzer
	Confidence *score.ConfidenceScorer
	Tracker    *outcome.Tracker
	Reputation *reputation.Engine
	DeadTokens *deadtoken.Detector
	PriceCache cache.PriceCache
	Appenders  []sink.Appender
	Metrics    *metrics.Registry
	Console    io.Writer
}

// Pipeline is the queue handler.
type Pipeline struct {
	deps   Deps
	report *Report
}

// New builds a pipeline around its dependencies.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, report: NewReport()}
}

// Report exposes the run's aggregate statistics.
func (p *Pipeline) Report() *Report {
	return p.report
}

// Handle processes one message end to end. The returned error triggers the
// queue's single retry, so only transient whole-message failures surface;
// everything token-specific is absorbed into the outcome record.
func (p *Pipeline) Handle(ctx context.Context, msg models.MessageEvent) error {
	start := time.Now()
	p.report.incr(&p.report.Processed)

	mentions := p.deps.Detector.Detect(msg.Text)
	if !p.deps.Detector.IsCryptoRelevant(msg.Text, mentions) {
		p.report.incr(&p.report.Irrelevant)
		return nil
	}

	_, hdrbScore := p.deps.HDRB.CalculateScore(score.Engagement{
		Forwards:  msg.Forwards,
		Reactions: msg.Reactions,
		Replies:   msg.Replies,
		Views:     msg.Views,
	})
	sentLabel, sentScore := p.analyzeSentiment(msg.Text)
	p.report.RecordSentiment(sentLabel)

	confidence := p.confidence(msg, mentions, hdrbScore, sentScore)

	var published *models.PriceData
	for _, addr := range mentions.Addresses {
		pd := p.processAddress(ctx, msg, addr, mentions, hdrbScore, sentLabel, sentScore, confidence)
		if published == nil && pd != nil {
			published = pd
		}
	}

	p.append(ctx, msg, mentions, sentLabel, sentScore, hdrbScore, confidence, published)
	p.printBlock(msg, mentions, sentLabel, hdrbScore, confidence, published, time.Since(start))

	p.report.RecordLatency(time.Since(start))
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveStep("handle", time.Since(start), nil)
	}
	return nil
}

// processAddress runs one detected address through resolution, pricing,
// filtering, and admission. Returns the price data when the token was
// admitted, nil otherwise.
func (p *Pipeline) processAddress(ctx context.Context, msg models.MessageEvent, addr models.Address,
	mentions detect.Mentions, hdrbScore float64, sentLabel string, sentScore, confidence float64) *models.PriceData {

	resolved := addr
	if p.deps.Resolver != nil {
		resolved = p.deps.Resolver.Resolve(ctx, addr)
	}

	blacklisted := p.deps.DeadTokens != nil && p.deps.DeadTokens.Blacklist().Contains(resolved.Raw)

	var pd *models.PriceData
	if !blacklisted {
		pd = p.fetchPrice(ctx, resolved)
	} else {
		log.Info().Str("address", resolved.Raw).Msg("blacklisted token, price fetch suppressed")
	}

	if pd == nil && !blacklisted && p.deps.DeadTokens != nil {
		if reason, err := p.deps.DeadTokens.Check(ctx, resolved, resolved.IsPool); err != nil {
			log.Debug().Str("address", resolved.Raw).Err(err).Msg("dead-token probe failed")
		} else if reason != "" {
			log.Info().Str("address", resolved.Raw).Str("reason", reason).Msg("token flagged dead")
		}
	}

	if verdict := p.filterVerdict(msg, resolved, pd); !verdict.Admit {
		p.report.incr(&p.report.Filtered)
		log.Info().
			Str("address", resolved.Raw).
			Str("reason", verdict.Reason).
			Msg("candidate rejected")
		return nil
	}

	symbol := ""
	if pd != nil {
		symbol = pd.Symbol
	}
	admitted, err := p.deps.Tracker.Admit(ctx, outcome.Admission{
		Message:        msg,
		Address:        resolved,
		Symbol:         symbol,
		Price:          pd,
		Sentiment:      sentLabel,
		SentimentScore: sentScore,
		HDRBScore:      hdrbScore,
		Confidence:     confidence,
	})
	switch {
	case errors.Is(err, outcome.ErrAlreadyTracked):
		p.report.incr(&p.report.Duplicates)
		// Repeat mention: fold the fresh observation into the live signal.
		if pd != nil && admitted != nil {
			zeroVol := pd.Volume24h != nil && *pd.Volume24h == 0
			if _, uerr := p.deps.Tracker.Update(admitted, pd.PriceUSD, zeroVol); uerr != nil {
				log.Warn().Str("address", resolved.Raw).Err(uerr).Msg("repeat-mention update failed")
			}
		}
		return nil
	case err != nil:
		p.report.incr(&p.report.Errors)
		log.Warn().
			Str("channel", msg.ChannelName).
			Str("address", resolved.Raw).
			Err(err).
			Msg("signal admission failed")
		return nil
	}

	p.report.incr(&p.report.Admitted)
	if p.deps.Metrics != nil {
		p.deps.Metrics.SignalsAdmitted.Inc()
	}
	return pd
}

func (p *Pipeline) fetchPrice(ctx context.Context, addr models.Address) *models.PriceData {
	key := cache.Key(addr.Family, addr.Raw)
	if p.deps.PriceCache != nil {
		if pd, ok := p.deps.PriceCache.Get(ctx, key); ok {
			if p.deps.Metrics != nil {
				p.deps.Metrics.CacheHits.WithLabelValues("price").Inc()
			}
			return pd
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.CacheMisses.WithLabelValues("price").Inc()
		}
	}

	if p.deps.Engine == nil {
		return nil
	}
	pd := p.deps.Engine.GetPrice(ctx, addr.Raw, addr.Family)
	if pd != nil && p.deps.PriceCache != nil {
		p.deps.PriceCache.Set(ctx, key, pd, priceCacheTTL)
	}
	return pd
}

func (p *Pipeline) filterVerdict(msg models.MessageEvent, addr models.Address, pd *models.PriceData) filter.Verdict {
	if p.deps.Filter == nil {
		return filter.Verdict{Admit: true}
	}
	c := filter.Candidate{
		Address:     addr.Raw,
		Chain:       addr.Family,
		MessageText: msg.Text,
		HasAddress:  true,
	}
	if pd != nil {
		c.Symbol = pd.Symbol
		price := pd.PriceUSD
		c.Price = &price
		c.MarketCap = pd.MarketCap
		c.Supply = pd.TotalSupply
	}
	return p.deps.Filter.Check(c)
}

func (p *Pipeline) analyzeSentiment(text string) (string, float64) {
	if p.deps.Sentiment == nil {
		return score.SentimentNeutral, 0
	}
	return p.deps.Sentiment.Analyze(text)
}

func (p *Pipeline) confidence(msg models.MessageEvent, mentions detect.Mentions, hdrbScore, sentScore float64) float64 {
	if p.deps.Confidence == nil {
		return 0
	}
	in := score.ConfidenceInputs{
		HDRBScore:      hdrbScore,
		HasMentions:    !mentions.Empty(),
		SentimentScore: sentScore,
		TextLength:     len([]rune(msg.Text)),
	}
	if p.deps.Reputation != nil {
		if rep, ok := p.deps.Reputation.Get(msg.ChannelName); ok {
			return p.deps.Confidence.Adjusted(in, rep)
		}
	}
	return p.deps.Confidence.Base(in)
}

func (p *Pipeline) append(ctx context.Context, msg models.MessageEvent, mentions detect.Mentions,
	sentLabel string, sentScore, hdrbScore, confidence float64, pd *models.PriceData) {

	if len(p.deps.Appenders) == 0 {
		return
	}
	row := sink.MessageRow{
		Timestamp:      msg.Timestamp,
		ChannelName:    msg.ChannelName,
		MessageID:      msg.MessageID,
		Text:           msg.Text,
		Tickers:        mentions.Tickers,
		Sentiment:      sentLabel,
		SentimentScore: sentScore,
		HDRBScore:      hdrbScore,
		Confidence:     confidence,
	}
	for _, a := range mentions.Addresses {
		row.Addresses = append(row.Addresses, a.Raw)
	}
	if pd != nil {
		row.PriceUSD = pd.PriceUSD
		row.Symbol = pd.Symbol
	}
	for _, appender := range p.deps.Appenders {
		if err := appender.AppendMessage(ctx, row); err != nil {
			p.report.incr(&p.report.SinkErrors)
			log.Warn().Err(err).Msg("message sink append failed")
		}
	}
}

// printBlock writes the human-readable per-message block to the console
// writer.
func (p *Pipeline) printBlock(msg models.MessageEvent, mentions detect.Mentions,
	sentLabel string, hdrbScore, confidence float64, pd *models.PriceData, took time.Duration) {

	if p.deps.Console == nil {
		return
	}
	badge := "LOW"
	if p.deps.Confidence != nil && p.deps.Confidence.IsHigh(confidence) {
		badge = "HIGH"
	}
	var addrs []string
	for _, a := range mentions.Addresses {
		addrs = append(addrs, a.Raw)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "┌─ %s #%s\n", msg.ChannelName, msg.MessageID)
	fmt.Fprintf(&b, "│ hdrb=%.1f sentiment=%s confidence=%.2f [%s]\n", hdrbScore, sentLabel, confidence, badge)
	if len(mentions.Tickers) > 0 {
		fmt.Fprintf(&b, "│ tickers: %s\n", strings.Join(mentions.Tickers, " "))
	}
	if len(addrs) > 0 {
		fmt.Fprintf(&b, "│ addresses: %s\n", strings.Join(addrs, " "))
	}
	if pd != nil {
		fmt.Fprintf(&b, "│ %s $%s (%s)\n", pd.Symbol, sink.FormatPrice(pd.PriceUSD), pd.Source)
	}
	fmt.Fprintf(&b, "└─ %s\n", took.Round(time.Millisecond))
	fmt.Fprint(p.deps.Console, b.String())
}

// RefreshActive walks every active signal, fetches a fresh price, and folds
// it into the tracker. Driven on a ticker from the run command.
func (p *Pipeline) RefreshActive(ctx context.Context, store *outcome.Store) {
	for _, o := range store.ActiveSignals() {
		if err := ctx.Err(); err != nil {
			return
		}
		addr := models.Address{Raw: o.Address, Family: chainFamilyOf(o.Address)}
		pd := p.fetchPrice(ctx, addr)
		if pd == nil {
			continue
		}
		zeroVol := pd.Volume24h != nil && *pd.Volume24h == 0
		res, err := p.deps.Tracker.Update(o, pd.PriceUSD, zeroVol)
		if err != nil {
			log.Warn().Str("address", o.Address).Err(err).Msg("tracked signal update failed")
			continue
		}
		if res.Completed && p.deps.Metrics != nil {
			p.deps.Metrics.SignalsCompleted.WithLabelValues(res.Reason).Inc()
		}
	}
}

func chainFamilyOf(address string) models.ChainFamily {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return models.ChainEVM
	}
	return models.ChainSolana
}
