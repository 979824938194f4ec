package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "analyzer base URL")
	user := flag.String("user", "loadtest", "X-User-ID for uploads")
	concurrency := flag.Int("concurrency", 4, "number of concurrent uploaders")
	sessions := flag.Int("sessions", 20, "total sessions to submit")
	audioDir := flag.String("audio-dir", "/samples", "directory with sample recordings")
	timeout := flag.Duration("timeout", 25*time.Minute, "max wait per session")
	flag.Parse()

	files, err := findAudioFiles(*audioDir)
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no audio files in %s, generating synthetic audio\n", *audioDir)
		files = nil
	}

	fmt.Printf("Load test: %d sessions, %d concurrent\n", *sessions, *concurrency)
	fmt.Printf("Server: %s | User: %s\n\n", *server, *user)

	jobs := make(chan int)
	var mu sync.Mutex
	var results []sessionResult
	var wg sync.WaitGroup

	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				r := runSession(*server, *user, files, *timeout)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}
	for i := range *sessions {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	printSummary(results)
}

type sessionResult struct {
	outcome      string // archived, failed, rejected, error
	uploadMs     float64
	transcriptMs float64
	analysisMs   float64
	totalMs      float64
	err          string
}

type statusMessage struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	AnalysisStage string `json:"analysis_stage"`
	ErrorMessage  string `json:"error_message"`
}

func runSession(server, user string, files []string, timeout time.Duration) sessionResult {
	start := time.Now()
	id, status, err := upload(server, user, files)
	if err != nil {
		return sessionResult{outcome: "error", err: err.Error()}
	}
	uploaded := time.Now()
	if status == http.StatusServiceUnavailable {
		return sessionResult{outcome: "rejected"}
	}

	wsURL := "ws" + strings.TrimPrefix(server, "http") + "/ws/sessions/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return sessionResult{outcome: "error", err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	r := sessionResult{uploadMs: ms(uploaded.Sub(start))}
	var voiceprintAt time.Time
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		var msg statusMessage
		if err := conn.ReadJSON(&msg); err != nil {
			r.outcome = "error"
			r.err = fmt.Sprintf("read: %v", err)
			return r
		}
		if msg.AnalysisStage == "voiceprint" && voiceprintAt.IsZero() {
			voiceprintAt = time.Now()
			r.transcriptMs = ms(voiceprintAt.Sub(uploaded))
		}
		if msg.Status != "archived" && msg.Status != "failed" {
			continue
		}
		if !voiceprintAt.IsZero() {
			r.analysisMs = ms(time.Since(voiceprintAt))
		}
		r.totalMs = ms(time.Since(start))
		r.outcome = msg.Status
		r.err = msg.ErrorMessage
		return r
	}
}

func upload(server, user string, files []string) (string, int, error) {
	name, data := pickAudio(files)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", 0, err
	}
	fw.Write(data)
	mw.WriteField("title", "loadtest "+name)
	mw.Close()

	req, err := http.NewRequest("POST", server+"/api/v1/audio/upload", &body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", user)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, fmt.Errorf("upload status %d", resp.StatusCode)
	}
	return out.SessionID, resp.StatusCode, nil
}

func pickAudio(files []string) (string, []byte) {
	if len(files) > 0 {
		f := files[rand.Intn(len(files))]
		data, err := os.ReadFile(f)
		if err == nil {
			return filepath.Base(f), data
		}
	}
	return "synthetic.wav", syntheticWAV(5 * time.Second)
}

// syntheticWAV renders a 16 kHz mono tone with noise as a PCM WAV file.
func syntheticWAV(dur time.Duration) []byte {
	const sampleRate = 16000
	numSamples := int(dur.Seconds()) * sampleRate

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+numSamples*2))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(numSamples*2))

	for i := range numSamples {
		t := float64(i) / sampleRate
		sample := math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05
		binary.Write(&buf, binary.LittleEndian, int16(sample*math.MaxInt16))
	}
	return buf.Bytes()
}

var audioExts = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".ogg": true, ".flac": true}

func findAudioFiles(dir string) ([]string, error) {
	var files []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func printSummary(results []sessionResult) {
	counts := map[string]int{}
	var uploadAll, transcriptAll, analysisAll, e2eAll []float64
	errs := map[string]int{}

	for _, r := range results {
		counts[r.outcome]++
		if r.err != "" {
			errs[r.err]++
		}
		if r.outcome != "archived" {
			continue
		}
		uploadAll = append(uploadAll, r.uploadMs)
		transcriptAll = append(transcriptAll, r.transcriptMs)
		analysisAll = append(analysisAll, r.analysisMs)
		e2eAll = append(e2eAll, r.totalMs)
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Archived: %d\n", counts["archived"])
	fmt.Printf("Failed:   %d\n", counts["failed"])
	fmt.Printf("Rejected: %d\n", counts["rejected"])
	fmt.Printf("Errors:   %d\n", counts["error"])
	for msg, n := range errs {
		fmt.Printf("  %4d  %s\n", n, msg)
	}

	if len(e2eAll) == 0 {
		fmt.Println("No archived sessions to report latency")
		return
	}

	fmt.Printf("\n%-10s %10s %10s %10s\n", "Stage", "p50", "p95", "p99")
	row := func(name string, data []float64) {
		fmt.Printf("%-10s %8.0fms %8.0fms %8.0fms\n", name, percentile(data, 50), percentile(data, 95), percentile(data, 99))
	}
	row("Upload", uploadAll)
	row("Transcript", transcriptAll)
	row("Analysis", analysisAll)
	row("E2E", e2eAll)
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
