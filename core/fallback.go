package core

import "pkt.systems/directorsync/schema"

// OfflineView is the view surfaced when nothing has been received yet:
// disconnected, unlocked, default snapshot and empty logs.
func OfflineView(streamer schema.StreamerID) schema.View {
	if streamer == "" {
		streamer = schema.DefaultStreamer
	}
	return schema.View{
		Connection: schema.Disconnected,
		Stale:      true,
		Snapshot:   schema.DefaultSnapshot(streamer),
		Locks:      schema.LockState{CurrentStreamer: streamer},
		VisionLog:  []string{},
		SpokenLog:  []string{},
		AudioLog:   []schema.AudioLogEntry{},
		Chat:       []schema.ChatMessage{},
		Replies:    []schema.BotReply{},
		Scores:     []schema.ScoreEntry{},
		Summary:    SummarizeScores(nil, schema.DefaultScoreWindow),
	}
}
