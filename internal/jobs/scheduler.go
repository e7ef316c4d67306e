// Package jobs управляет фоновыми задачами (cron).
// scheduler.go держит реестр именованных задач: повторное определение
// задачи с тем же именем заменяет старое расписание, а каждый запуск
// защищён от наложения — опоздавший триггер отбрасывается, пока
// предыдущий прогон той же задачи не завершился.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Func — тело фоновой задачи.
type Func func(ctx context.Context) error

type job struct {
	id      string
	fn      Func
	running atomic.Bool
	entryID cron.EntryID // 0 — разовая задача
	timer   *time.Timer  // nil — cron-задача
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location

	mu      sync.Mutex
	jobs    map[string]*job
	baseCtx context.Context
	started bool
}

// NewScheduler создаёт планировщик задач в часовом поясе сервиса.
func NewScheduler(loc *time.Location) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		loc:  loc,
		jobs: make(map[string]*job),
	}
}

// AddCron регистрирует периодическую задачу по cron-выражению.
// Задача с тем же id заменяется: старое расписание снимается,
// новое встаёт на его место.
func (s *Scheduler) AddCron(id, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	j := &job{id: id, fn: fn}
	entryID, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return err
	}
	j.entryID = entryID
	s.jobs[id] = j

	log.WithFields(log.Fields{"job": id, "spec": spec}).Info("[CRON] Задача зарегистрирована")
	return nil
}

// AddOneShot регистрирует разовую задачу с задержкой от текущего
// момента. Повторная регистрация того же id перезапускает отсчёт.
func (s *Scheduler) AddOneShot(id string, delay time.Duration, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	j := &job{id: id, fn: fn}
	j.timer = time.AfterFunc(delay, func() { s.run(j) })
	s.jobs[id] = j

	log.WithFields(log.Fields{"job": id, "delay": delay}).Info("[CRON] Разовая задача зарегистрирована")
}

// RunNow запускает задачу вне расписания. Защита от наложения
// действует и здесь: если задача уже идёт, запуск отбрасывается.
func (s *Scheduler) RunNow(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	go s.run(j)
	return true
}

// Start запускает планировщик. ctx становится базовым контекстом
// всех прогонов: его отмена прерывает блокирующие операции задач.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	log.WithField("tz", s.loc.String()).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и дожидается завершения идущих
// cron-прогонов. Разовые таймеры снимаются без ожидания.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	log.Info("Планировщик задач остановлен")
}

// run — общий прогон задачи: защита от наложения, перехват паники,
// логирование исхода. Ошибка задачи — событие лога, не сбой планировщика.
func (s *Scheduler) run(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		log.WithField("job", j.id).Warn("[CRON] Предыдущий прогон ещё идёт, запуск отброшен")
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"job": j.id, "panic": r}).Error("[CRON] Паника в задаче")
		}
	}()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	if err := j.fn(ctx); err != nil {
		log.WithError(err).WithField("job", j.id).Error("[CRON] Ошибка задачи")
		return
	}
	log.WithFields(log.Fields{
		"job":      j.id,
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Debug("[CRON] Задача завершена")
}

// removeLocked снимает старое определение задачи. Вызывается под мьютексом.
func (s *Scheduler) removeLocked(id string) {
	old, ok := s.jobs[id]
	if !ok {
		return
	}
	if old.entryID != 0 {
		s.cron.Remove(old.entryID)
	}
	if old.timer != nil {
		old.timer.Stop()
	}
	delete(s.jobs, id)
	log.WithField("job", id).Info("[CRON] Старое определение задачи снято")
}
