package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Canal São João", "Canal_Sao_Joao"},
		{"abc-1.2_x", "abc-1.2_x"},
		{"a/b\\c", "a_b_c"},
		{"日本", "canal"},
		{"", "canal"},
		{"Ação!", "Acao_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLiveDirName(t *testing.T) {
	got := LiveDirName("Canal Ção", "2024-05-01T21:03:07Z", "abc123")
	want := "Canal_Cao__2024-05-01__21-03-07__abc123"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := LiveDirName("x", "", "v"); got != "x______v" {
		t.Fatalf("empty start: got %q", got)
	}
	if got := LiveDirName("x", "2024-05-01 21:03:07", "v"); got != "x__2024-05-01__21-03-07__v" {
		t.Fatalf("non-rfc3339 start: got %q", got)
	}
}

func TestMetadataCSVAndJSON(t *testing.T) {
	dir := t.TempDir()
	m := Metadata{
		VideoID: "vid", Title: "Live, com vírgula", Description: "linha1\nlinha2",
		Channel: "Canal", PublishedAt: "2024-05-01T20:00:00Z", LiveStartedAt: "2024-05-01T21:00:00Z",
		ConcurrentViewers: "42", Likes: 7, Views: 100, Comments: 3,
	}
	if err := WriteMetadataCSV(dir, m); err != nil {
		t.Fatalf("WriteMetadataCSV: %v", err)
	}
	rows, err := readCSV(filepath.Join(dir, MetadataFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(MetadataHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != m.Title || rows[1][2] != m.Description || rows[1][7] != "7" {
		t.Errorf("row = %v", rows[1])
	}

	// Rewriting replaces rather than appends.
	if err := WriteMetadataCSV(dir, m); err != nil {
		t.Fatal(err)
	}
	rows, _ = readCSV(filepath.Join(dir, MetadataFile))
	if len(rows) != 2 {
		t.Fatalf("rows after rewrite = %d", len(rows))
	}

	jp := MetadataJSONPath(dir, "vid")
	if err := WriteMetadataJSON(jp, m); err != nil {
		t.Fatalf("WriteMetadataJSON: %v", err)
	}
	b, _ := os.ReadFile(jp)
	if !strings.Contains(string(b), "\n  \"id_video\": \"vid\"") {
		t.Errorf("json not indented with two spaces:\n%s", b)
	}
	if strings.Contains(string(b), "ChannelID") {
		t.Errorf("channel id leaked into json")
	}
	var got Metadata
	if err := json.Unmarshal(b, &got); err != nil || got.Title != m.Title || got.Views != 100 {
		t.Errorf("metadata json = %+v, %v", got, err)
	}
}

func TestChatWriterAppendsWithSingleHeader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "live")
	w, err := OpenChat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append([]ChatMessage{{"v", "t1", "ana", "oi"}, {"v", "t2", "bia", "olá, \"mundo\""}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w, err = OpenChat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append([]ChatMessage{{"v", "t3", "caio", "tchau"}}); err != nil {
		t.Fatal(err)
	}
	if w.Rows() != 1 {
		t.Errorf("Rows = %d, want 1", w.Rows())
	}
	_ = w.Close()

	rows, err := readCSV(filepath.Join(dir, ChatFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4 (header + 3)", len(rows))
	}
	if rows[0][0] != "id_video" || rows[2][3] != "olá, \"mundo\"" || rows[3][2] != "caio" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestConsumptionLog(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	if err := AppendConsumption(dir, now, 3, 2); err != nil {
		t.Fatal(err)
	}
	if err := AppendConsumption(dir, now.Add(time.Minute), 1, 0); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "log_consumo_20240501.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0] != "2024-05-01T21:00:00Z BUSCA:3 METADADOS:2 TOTAL:302" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestLoadChannels(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "canais.txt")
	os.WriteFile(txt, []byte("# lista\nUC1\n\nhttps://www.youtube.com/channel/UC2/live\nUC1\n"), 0o644)
	got, err := LoadChannels(txt)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "UC1" || got[1].ID != "UC2" {
		t.Fatalf("txt channels = %+v", got)
	}

	yml := filepath.Join(dir, "canais.yaml")
	os.WriteFile(yml, []byte("channels:\n  - id: UCa\n    name: Canal A\n  - id: UCb\n"), 0o644)
	got, err = LoadChannels(yml)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Canal A" || got[1].ID != "UCb" {
		t.Fatalf("yaml channels = %+v", got)
	}

	if _, err := LoadChannels(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUnifyAndDescribe(t *testing.T) {
	data := t.TempDir()
	for i, id := range []string{"a1", "b2"} {
		m := Metadata{VideoID: id, Title: "T" + id, Description: "longa", Channel: "C", LiveStartedAt: "2024-05-01T21:00:00Z", Likes: 5}
		dir := LiveDir(data, m)
		if err := WriteMetadataCSV(dir, m); err != nil {
			t.Fatal(err)
		}
		w, err := OpenChat(dir)
		if err != nil {
			t.Fatal(err)
		}
		ts := fmt.Sprintf("2024-05-0%dT21:00:00Z", i+1)
		_ = w.Append([]ChatMessage{{id, ts, "x", "1"}, {id, ts, "y", "2"}})
		_ = w.Close()
	}
	// A folder with chat but no metadata is skipped.
	orphan := filepath.Join(data, "C__2024-05-03__00-00-00__zz")
	w, _ := OpenChat(orphan)
	_ = w.Close()

	out := filepath.Join(t.TempDir(), UnifiedFile)
	res, err := Unify(data, out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Lives != 2 || res.Messages != 4 || len(res.Skipped) != 1 {
		t.Fatalf("result = %+v", res)
	}
	rows, _ := readCSV(out)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if strings.Join(rows[0], ",") != "id_video,timestamp,autor,mensagem,titulo,canal,data_publicacao,data_inicio_live,espectadores_atuais,likes,visualizacoes,comentarios" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][4] != "Ta1" || rows[1][9] != "5" {
		t.Errorf("row = %v", rows[1])
	}

	d, err := Describe(out)
	if err != nil {
		t.Fatal(err)
	}
	if d.Lives != 2 || d.Messages != 4 || len(d.Channels) != 1 || d.Channels[0].Lives != 2 {
		t.Fatalf("description = %+v", d)
	}
	if d.First.Day() != 1 || d.Last.Day() != 2 {
		t.Errorf("period = %v .. %v", d.First, d.Last)
	}
}
