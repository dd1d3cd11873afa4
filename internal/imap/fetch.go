package imap

import (
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// SearchUnseen returns the UIDs of messages without the \Seen flag in the selected
// mailbox, newest (highest UID) first, capped at limit.
func SearchUnseen(c *client.Client, limit int) ([]uint32, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}
	return uids, nil
}

// FetchFullMessages fetches the raw RFC 822 message for each UID without setting \Seen.
func FetchFullMessages(c *client.Client, uids []uint32) ([]*imap.Message, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	if len(uids) == 0 {
		return []*imap.Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []*imap.Message
	for msg := range messages {
		result = append(result, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Uid > result[j].Uid })
	return result, nil
}

// MarkSeen adds the \Seen flag to all given UIDs in one UID STORE.
func MarkSeen(c *client.Client, uids []uint32) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}

	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark messages as seen: %w", err)
	}
	return nil
}
