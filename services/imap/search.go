package imap

import (
	"context"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

// FindUnreadFromSenders searches the selected mailbox for unseen
// messages from any of the given senders and returns their UIDs in
// server-reported order. An empty sender list returns an empty result
// without talking to the server.
func (s *IMAPService) FindUnreadFromSenders(ctx context.Context, senders []string) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.FindUnreadFromSenders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("sender_count", len(senders)))

	if len(senders) == 0 {
		return []uint32{}, nil
	}

	if s.client == nil {
		err := er.New(er.KindTransport, "no active session")
		tracing.TraceErr(span, err)
		return nil, err
	}

	criteria := buildUnreadCriteria(senders)

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		err = er.Wrap(er.KindTransport, err, "unread search failed")
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result_count", len(uids)))
	return uids, nil
}

// buildUnreadCriteria combines the UNSEEN predicate with a FROM
// disjunction over the sender list, preserving configured order.
func buildUnreadCriteria(senders []string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	if len(senders) == 1 {
		criteria.Header.Add("From", senders[0])
		return criteria
	}

	disjunction := senderDisjunction(senders)
	criteria.Or = disjunction.Or
	return criteria
}

// senderDisjunction builds an OR chain of FROM predicates. go-imap
// expresses OR as nested pairs, so a list of n senders becomes
// OR(s1, OR(s2, ... sn)) with the configured order intact.
func senderDisjunction(senders []string) *imap.SearchCriteria {
	from := imap.NewSearchCriteria()
	from.Header.Add("From", senders[0])

	if len(senders) == 1 {
		return from
	}

	or := imap.NewSearchCriteria()
	or.Or = [][2]*imap.SearchCriteria{{from, senderDisjunction(senders[1:])}}
	return or
}
