package main

import (
	"embed"
	"encoding/gob"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"qcorpus"

	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionName = "corpus-session"
	maxRecent   = 5
)

type Server struct {
	db        *qcorpus.DB
	store     *sessions.CookieStore
	templates map[string]*template.Template
}

// Visits is the per-browser list of recently opened runs.
type Visits struct {
	RunIDs []string
}

func init() {
	gob.Register(Visits{})
}

func main() {
	cfg, err := qcorpus.LoadConfig(os.Getenv("QCORPUS_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	qcorpus.InitLogging(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	qcorpus.SetVerbose(true)

	dbPath := cfg.Database
	if dbPath == "" {
		dbPath = "./corpus.db"
	}
	db, err := qcorpus.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	secret := os.Getenv("CORPUSWEB_SECRET")
	if secret == "" {
		log.Fatal("CORPUSWEB_SECRET environment variable is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	server := &Server{
		db:        db,
		store:     sessions.NewCookieStore([]byte(secret)),
		templates: templates,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8180"
	}

	log.Printf("Starting server on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, server.routes()))
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/run/", s.handleRun)
	return mux
}

var funcMap = template.FuncMap{
	"add": func(a, b int) int {
		return a + b
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"printf": fmt.Sprintf,
}

func loadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	for _, name := range []string{"home", "run", "duplicates"} {
		tmpl, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}
	return templates, nil
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template error in %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	runs, err := s.db.GetRuns(limit)
	if err != nil {
		log.Printf("Failed to get runs: %v", err)
		http.Error(w, "Failed to get runs", http.StatusInternalServerError)
		return
	}

	session, _ := s.store.Get(r, sessionName)
	var flash string
	if flashes := session.Flashes(); len(flashes) > 0 {
		flash, _ = flashes[0].(string)
		if err := session.Save(r, w); err != nil {
			log.Printf("Session save error: %v", err)
		}
	}
	visits, _ := session.Values["visits"].(Visits)

	s.render(w, "home", map[string]any{
		"Runs":   runs,
		"Recent": visits.RunIDs,
		"Flash":  flash,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/run/"), "/"), "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	runID := parts[0]

	run, err := s.db.GetRun(runID)
	if err != nil {
		session, _ := s.store.Get(r, sessionName)
		session.AddFlash(fmt.Sprintf("Run %s not found", runID))
		if err := session.Save(r, w); err != nil {
			log.Printf("Session save error: %v", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.remember(w, r, runID)

	switch {
	case len(parts) == 1:
		s.handleReport(w, run)
	case len(parts) == 2 && parts[1] == "duplicates":
		s.handleDuplicates(w, run)
	case len(parts) == 2 && parts[1] == "report.json":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, run.Report)
	default:
		http.NotFound(w, r)
	}
}

// remember moves runID to the front of the session's recent list.
func (s *Server) remember(w http.ResponseWriter, r *http.Request, runID string) {
	session, _ := s.store.Get(r, sessionName)
	visits, _ := session.Values["visits"].(Visits)

	recent := []string{runID}
	for _, id := range visits.RunIDs {
		if id != runID && len(recent) < maxRecent {
			recent = append(recent, id)
		}
	}
	session.Values["visits"] = Visits{RunIDs: recent}
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, run *qcorpus.DBRun) {
	report, err := run.DecodeReport()
	if err != nil {
		log.Printf("Failed to decode report for %s: %v", run.ID, err)
		http.Error(w, "Failed to decode report", http.StatusInternalServerError)
		return
	}

	type letterCount struct {
		Letter string
		Count  int
	}
	var letters []letterCount
	for _, l := range []string{"A", "B", "C", "D", "E"} {
		if n, ok := report.CorrectAnswer.Distribution[l]; ok {
			letters = append(letters, letterCount{l, n})
		}
	}

	s.render(w, "run", map[string]any{
		"Run":     run,
		"Report":  report,
		"Letters": letters,
	})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, run *qcorpus.DBRun) {
	pairs, err := s.db.GetDuplicatePairs(run.ID)
	if err != nil {
		log.Printf("Failed to get duplicate pairs: %v", err)
		http.Error(w, "Failed to get duplicate pairs", http.StatusInternalServerError)
		return
	}

	questions, err := s.db.GetRunQuestions(run.ID, false)
	if err != nil {
		log.Printf("Failed to get questions: %v", err)
		http.Error(w, "Failed to get questions", http.StatusInternalServerError)
		return
	}
	stems := make(map[string]string, len(questions))
	for _, q := range questions {
		stems[q.ID] = q.Stem
	}

	type pairView struct {
		qcorpus.DuplicatePair
		FirstStem  string
		SecondStem string
	}
	views := make([]pairView, 0, len(pairs))
	for _, p := range pairs {
		views = append(views, pairView{p, stems[p.First], stems[p.Second]})
	}

	s.render(w, "duplicates", map[string]any{
		"Run":   run,
		"Pairs": views,
	})
}
