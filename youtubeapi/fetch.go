package youtubeapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/ytchat-collector/store"
)

// ChatPageSize is the maxResults used for chat pages (the API maximum).
const ChatPageSize = 200

// LiveRef identifies a live stream found on a channel.
type LiveRef struct {
	VideoID string
	Title   string
	Channel string
}

// VideoInfo is the metadata of a video plus the fields the capture loop needs.
type VideoInfo struct {
	Metadata   store.Metadata
	LiveChatID string
	// Ended is true once the API reports an actual end time.
	Ended bool
}

// ChatPage is one page of chat messages already mapped into records.
type ChatPage struct {
	Messages      []store.ChatMessage
	Skipped       int
	NextPageToken string
	PollInterval  time.Duration
	// OfflineAt is set when the chat went offline.
	OfflineAt string
}

// API runs the collector's YouTube calls through a Requester.
type API struct {
	r Requester
}

// NewAPI wraps r.
func NewAPI(r Requester) *API { return &API{r: r} }

// SearchLive returns the channel's current live stream, if any (search.list, eventType=live).
func (a *API) SearchLive(ctx context.Context, channelID string) (*LiveRef, error) {
	resp, err := Do(ctx, a.r, func(ctx context.Context, svc *yt.Service) (*yt.SearchListResponse, error) {
		return svc.Search.List([]string{"id", "snippet"}).
			ChannelId(channelID).
			EventType("live").
			Type("video").
			MaxResults(1).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("search live for %s: %w", channelID, err)
	}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ref := &LiveRef{VideoID: item.Id.VideoId}
		if item.Snippet != nil {
			ref.Title = item.Snippet.Title
			ref.Channel = item.Snippet.ChannelTitle
		}
		return ref, nil
	}
	return nil, nil
}

// Video fetches snippet, liveStreamingDetails and statistics for one video.
func (a *API) Video(ctx context.Context, videoID string) (*VideoInfo, error) {
	resp, err := Do(ctx, a.r, func(ctx context.Context, svc *yt.Service) (*yt.VideoListResponse, error) {
		return svc.Videos.List([]string{"snippet", "liveStreamingDetails", "statistics"}).
			Id(videoID).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	v := resp.Items[0]
	info := &VideoInfo{Metadata: MetadataFromVideo(v)}
	if d := v.LiveStreamingDetails; d != nil {
		info.LiveChatID = d.ActiveLiveChatId
		info.Ended = d.ActualEndTime != ""
	}
	return info, nil
}

// IsStillLive reports whether the video has not ended yet.
func (a *API) IsStillLive(ctx context.Context, videoID string) (bool, error) {
	info, err := a.Video(ctx, videoID)
	if err != nil {
		return false, err
	}
	return !info.Ended, nil
}

// ChatPage fetches one page of live chat messages. Errors meaning the chat is over wrap
// ErrChatEnded.
func (a *API) ChatPage(ctx context.Context, videoID, chatID, pageToken string) (*ChatPage, error) {
	resp, err := Do(ctx, a.r, func(ctx context.Context, svc *yt.Service) (*yt.LiveChatMessageListResponse, error) {
		call := svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).
			MaxResults(ChatPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		return call.Do()
	})
	if err != nil {
		if chatEnded(err) {
			return nil, fmt.Errorf("%w: %w", ErrChatEnded, err)
		}
		return nil, err
	}
	msgs, skipped := MessagesFromPage(videoID, resp)
	return &ChatPage{
		Messages:      msgs,
		Skipped:       skipped,
		NextPageToken: resp.NextPageToken,
		PollInterval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
		OfflineAt:     resp.OfflineAt,
	}, nil
}

// MetadataFromVideo maps a videos.list item into a metadata record. Missing parts leave
// their fields empty or zero.
func MetadataFromVideo(v *yt.Video) store.Metadata {
	m := store.Metadata{VideoID: v.Id}
	if s := v.Snippet; s != nil {
		m.Title = s.Title
		m.Description = s.Description
		m.Channel = s.ChannelTitle
		m.ChannelID = s.ChannelId
		m.PublishedAt = s.PublishedAt
	}
	if d := v.LiveStreamingDetails; d != nil {
		m.LiveStartedAt = d.ActualStartTime
		if d.ConcurrentViewers > 0 {
			m.ConcurrentViewers = strconv.FormatUint(d.ConcurrentViewers, 10)
		}
	}
	if st := v.Statistics; st != nil {
		m.Likes = st.LikeCount
		m.Views = st.ViewCount
		m.Comments = st.CommentCount
	}
	return m
}

// MessagesFromPage maps chat items into records, skipping items without display text
// (deleted messages, membership events and the like). It returns the number skipped.
func MessagesFromPage(videoID string, resp *yt.LiveChatMessageListResponse) ([]store.ChatMessage, int) {
	if resp == nil {
		return nil, 0
	}
	out := make([]store.ChatMessage, 0, len(resp.Items))
	skipped := 0
	for _, item := range resp.Items {
		if item == nil || item.Snippet == nil || strings.TrimSpace(item.Snippet.DisplayMessage) == "" {
			skipped++
			continue
		}
		msg := store.ChatMessage{
			VideoID:   videoID,
			Timestamp: item.Snippet.PublishedAt,
			Message:   item.Snippet.DisplayMessage,
		}
		if item.AuthorDetails != nil {
			msg.Author = item.AuthorDetails.DisplayName
		}
		out = append(out, msg)
	}
	return out, skipped
}
