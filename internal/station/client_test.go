package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orchidlab/synthctl/internal/taskgraph"
)

func ok(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "msg": "ok", "data": json.RawMessage(raw)})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLoginSetsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "op" || body["password"] != "secret" {
			t.Errorf("credentials = %v", body)
		}
		ok(t, w, map[string]string{"token_kind": "Bearer", "access_token": "tok123"})
	})

	if c.Authenticated() {
		t.Fatal("fresh client should not be authenticated")
	}
	if err := c.Login(context.Background(), "op", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("expected cached token")
	}
	c.ClearToken()
	if c.Authenticated() {
		t.Fatal("ClearToken should drop the token")
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/login" {
			ok(t, w, map[string]string{"token_kind": "Bearer", "access_token": "tok123"})
			return
		}
		gotAuth = r.Header.Get("Authorization")
		ok(t, w, map[string]int{"status": int(StateIdle)})
	})

	ctx := context.Background()
	if err := c.Login(ctx, "op", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.StationState(ctx); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestHTTP401MapsToErrUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.StationState(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestServerCodeBecomesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 5001, "msg": "arm fault"})
	})
	_, err := c.StationState(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.Code != 5001 || apiErr.Msg != "arm fault" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "duplicate task name")
	})
	_, err := c.AddTask(context.Background(), &taskgraph.Payload{TaskName: "run-7"})
	var dup *DuplicateTaskError
	if !errors.As(err, &dup) {
		t.Fatalf("want DuplicateTaskError, got %v", err)
	}
	if dup.TaskName != "run-7" {
		t.Errorf("TaskName = %q", dup.TaskName)
	}
}

func TestAddTaskReturnsID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var p taskgraph.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.TaskName != "run-8" {
			t.Errorf("task_name = %q", p.TaskName)
		}
		ok(t, w, map[string]int64{"task_id": 42})
	})
	id, err := c.AddTask(context.Background(), &taskgraph.Payload{TaskName: "run-8"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Errorf("task id = %d", id)
	}
}

func TestStartTaskShortage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 1200, "msg": "missing 50uL tips"})
	})
	err := c.StartTask(context.Background(), 42)
	var nr *NotReadyError
	if !errors.As(err, &nr) {
		t.Fatalf("want NotReadyError, got %v", err)
	}
	if nr.TaskID != 42 || nr.Msg != "missing 50uL tips" {
		t.Errorf("NotReadyError = %+v", nr)
	}
}

func TestCheckTaskResourceSoft1200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]string{"prompt_msg": "load more DMSO"})
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 1200, "msg": "shortage", "data": json.RawMessage(raw)})
	})
	check, err := c.CheckTaskResource(context.Background(), 42)
	if err != nil {
		t.Fatalf("1200 must be soft: %v", err)
	}
	if !check.Shortage() || check.PromptMsg != "load more DMSO" {
		t.Errorf("check = %+v", check)
	}
}

func TestResourceInfoAndTaskList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/resource/info":
			ok(t, w, map[string]any{"items": []InventoryRow{
				{LayoutCode: "W-1-3", TrayCode: 630125, Name: "125 mL reagent bottle tray", Count: 0},
			}})
		case "/api/task/list":
			if r.URL.Query().Get("status") != TaskRunning {
				t.Errorf("status filter = %q", r.URL.Query().Get("status"))
			}
			ok(t, w, map[string]any{"items": []TaskInfo{{ID: 7, Status: TaskRunning}}, "total": 1})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	rows, err := c.ResourceInfo(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TrayCode != 630125 {
		t.Errorf("rows = %+v", rows)
	}
	tasks, total, err := c.TaskList(ctx, TaskListOptions{Status: TaskRunning})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(tasks) != 1 || tasks[0].ID != 7 {
		t.Errorf("tasks = %+v total = %d", tasks, total)
	}
}

func TestTaskTerminal(t *testing.T) {
	for _, s := range []string{TaskCompleted, TaskFailed, TaskStopped} {
		if !TaskTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []string{TaskUnstarted, TaskRunning, TaskPaused, TaskWaiting, TaskHolding} {
		if TaskTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTrayCatalog(t *testing.T) {
	if ConsumableForTray(620010) != ConsumableTip50uL {
		t.Error("620010 should stock 50 μL tips")
	}
	if got := BottleClassML(630008); got != 8 {
		t.Errorf("630008 bottle class = %v", got)
	}
	if got := BottleClassML(620001); got != 0 {
		t.Errorf("tube tray bottle class = %v", got)
	}
	spec, ok := TrayByCode(630125)
	if !ok || spec.BottleML != 125 {
		t.Errorf("630125 spec = %+v", spec)
	}
}
