// Package store persists what the collector gathers: per-live folders holding a single-row
// metadata CSV and an append-only chat CSV, metadata JSON snapshots, the daily quota
// consumption log, and the unified dataset built from all captured lives. Column names are
// kept identical to the files produced by earlier collectors so downstream notebooks keep working.
package store

import "strconv"

// MetadataHeader is the column order of metadados.csv.
var MetadataHeader = []string{
	"id_video", "titulo", "descricao", "canal", "data_publicacao",
	"data_inicio_live", "espectadores_atuais", "likes", "visualizacoes", "comentarios",
}

// ChatHeader is the column order of chat.csv.
var ChatHeader = []string{"id_video", "timestamp", "autor", "mensagem"}

// Metadata describes one live stream at the time it was detected.
type Metadata struct {
	VideoID           string `json:"id_video"`
	Title             string `json:"titulo"`
	Description       string `json:"descricao"`
	Channel           string `json:"canal"`
	ChannelID         string `json:"-"`
	PublishedAt       string `json:"data_publicacao"`
	LiveStartedAt     string `json:"data_inicio_live"`
	ConcurrentViewers string `json:"espectadores_atuais"`
	Likes             uint64 `json:"likes"`
	Views             uint64 `json:"visualizacoes"`
	Comments          uint64 `json:"comentarios"`
}

// Row renders m in MetadataHeader order.
func (m Metadata) Row() []string {
	return []string{
		m.VideoID, m.Title, m.Description, m.Channel, m.PublishedAt,
		m.LiveStartedAt, m.ConcurrentViewers,
		strconv.FormatUint(m.Likes, 10),
		strconv.FormatUint(m.Views, 10),
		strconv.FormatUint(m.Comments, 10),
	}
}

// ChatMessage is one captured chat line. Timestamp is the API's ISO-8601 publishedAt.
type ChatMessage struct {
	VideoID   string
	Timestamp string
	Author    string
	Message   string
}

// Row renders c in ChatHeader order.
func (c ChatMessage) Row() []string {
	return []string{c.VideoID, c.Timestamp, c.Author, c.Message}
}
