package channels

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/tidwall/jsonc"
)

//go:embed default_user_channels.json
var defaultUserChannelSet []byte

// UserChannelSet is the ordered set of user channels offered to apps.
type UserChannelSet struct {
	items []fdc3.ChannelItem
	byID  map[string]fdc3.ChannelItem
}

// NewUserChannelSet builds a set from items. Items with an empty id are
// skipped; later duplicates replace earlier ones in place.
func NewUserChannelSet(items []fdc3.ChannelItem) *UserChannelSet {
	set := &UserChannelSet{byID: make(map[string]fdc3.ChannelItem, len(items))}
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		item.Type = fdc3.ChannelTypeUser
		if _, exists := set.byID[item.ID]; exists {
			for i := range set.items {
				if set.items[i].ID == item.ID {
					set.items[i] = item
				}
			}
		} else {
			set.items = append(set.items, item)
		}
		set.byID[item.ID] = item
	}
	return set
}

// Items returns the channels in declaration order.
func (s *UserChannelSet) Items() []fdc3.ChannelItem {
	if s == nil {
		return nil
	}
	return append([]fdc3.ChannelItem(nil), s.items...)
}

// Get returns the channel with id.
func (s *UserChannelSet) Get(id string) (fdc3.ChannelItem, bool) {
	if s == nil {
		return fdc3.ChannelItem{}, false
	}
	item, ok := s.byID[id]
	return item, ok
}

// Len returns the number of channels.
func (s *UserChannelSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// DefaultUserChannelSet returns the eight recommended FDC3 user channels.
func DefaultUserChannelSet() *UserChannelSet {
	set, err := ParseUserChannelSet(defaultUserChannelSet)
	if err != nil {
		panic(fmt.Sprintf("embedded user channel set: %v", err))
	}
	return set
}

// ParseUserChannelSet decodes a JSON (comments allowed) array of channel items.
func ParseUserChannelSet(data []byte) (*UserChannelSet, error) {
	var items []fdc3.ChannelItem
	if err := json.Unmarshal(jsonc.ToJSON(data), &items); err != nil {
		return nil, fmt.Errorf("failed to decode user channel set: %w", err)
	}
	set := NewUserChannelSet(items)
	if set.Len() == 0 {
		return nil, ErrUserChannelSetEmpty
	}
	return set, nil
}

// LoadUserChannelSet reads the set from source: empty for the embedded
// default, an http(s) URL, a file URL or a plain path.
func LoadUserChannelSet(ctx context.Context, source string, client *http.Client) (*UserChannelSet, error) {
	if source == "" {
		return DefaultUserChannelSet(), nil
	}

	if strings.Contains(source, "://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUserChannelSetSource, err)
		}
		switch u.Scheme {
		case "http", "https":
			return fetchUserChannelSet(ctx, u.String(), client)
		case "file":
			source = u.Path
		default:
			return nil, fmt.Errorf("%w: %s", ErrUserChannelSetSource, u.Scheme)
		}
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read user channel set: %w", err)
	}
	return ParseUserChannelSet(data)
}

func fetchUserChannelSet(ctx context.Context, target string, client *http.Client) (*UserChannelSet, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user channel set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch user channel set: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user channel set: %w", err)
	}
	return ParseUserChannelSet(data)
}
