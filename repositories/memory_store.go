package repositories

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Dosada05/debate-tab/models"
)

// memoryDB is a process-local store with the same constraints as the Postgres schema.
// Writes are expected to run inside the store's Transactor: transactions are serialized
// and a failed one restores the state it started from.
type memoryDB struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	nextID         int
	tournaments    map[int]models.Tournament
	teams          map[int]models.Team
	members        map[int]models.Member
	rounds         map[int]models.Round
	rooms          map[int]models.Room
	participations map[int]models.Participation
	results        map[int]models.Result
}

type memorySnapshot struct {
	nextID         int
	tournaments    map[int]models.Tournament
	teams          map[int]models.Team
	members        map[int]models.Member
	rounds         map[int]models.Round
	rooms          map[int]models.Room
	participations map[int]models.Participation
	results        map[int]models.Result
}

// NewMemoryStore returns a Store kept entirely in memory. Used by tests and the simulator.
func NewMemoryStore() *Store {
	db := &memoryDB{
		tournaments:    make(map[int]models.Tournament),
		teams:          make(map[int]models.Team),
		members:        make(map[int]models.Member),
		rounds:         make(map[int]models.Round),
		rooms:          make(map[int]models.Room),
		participations: make(map[int]models.Participation),
		results:        make(map[int]models.Result),
	}
	return &Store{
		Tournaments: &memoryTournamentRepository{db: db},
		Teams:       &memoryTeamRepository{db: db},
		Rounds:      &memoryRoundRepository{db: db},
		Rooms:       &memoryRoomRepository{db: db},
		Results:     &memoryResultRepository{db: db},
		Tx:          &memoryTransactor{db: db},
	}
}

func (db *memoryDB) id() int {
	db.nextID++
	return db.nextID
}

func (db *memoryDB) snapshot() memorySnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return memorySnapshot{
		nextID:         db.nextID,
		tournaments:    maps.Clone(db.tournaments),
		teams:          maps.Clone(db.teams),
		members:        maps.Clone(db.members),
		rounds:         maps.Clone(db.rounds),
		rooms:          maps.Clone(db.rooms),
		participations: maps.Clone(db.participations),
		results:        maps.Clone(db.results),
	}
}

func (db *memoryDB) restore(s memorySnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID = s.nextID
	db.tournaments = s.tournaments
	db.teams = s.teams
	db.members = s.members
	db.rounds = s.rounds
	db.rooms = s.rooms
	db.participations = s.participations
	db.results = s.results
}

type memoryTransactor struct {
	db *memoryDB
}

func (t *memoryTransactor) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	snap := t.db.snapshot()
	defer func() {
		if p := recover(); p != nil {
			t.db.restore(snap)
			panic(p)
		}
		if err != nil {
			t.db.restore(snap)
		}
	}()

	return fn(ctx, nil)
}

// WithinTournament serializes on the single store lock, which covers every tournament.
func (t *memoryTransactor) WithinTournament(ctx context.Context, tournamentID int, fn TxFunc) error {
	return t.WithinTx(ctx, fn)
}

func cloneTournament(t models.Tournament) *models.Tournament {
	out := t
	if t.LocationName != nil {
		v := *t.LocationName
		out.LocationName = &v
	}
	if t.LocationLat != nil {
		v := *t.LocationLat
		out.LocationLat = &v
	}
	if t.LocationLng != nil {
		v := *t.LocationLng
		out.LocationLng = &v
	}
	if t.ChampionTeamID != nil {
		v := *t.ChampionTeamID
		out.ChampionTeamID = &v
	}
	out.Champion = nil
	return &out
}

// --- tournaments ---

type memoryTournamentRepository struct {
	db *memoryDB
}

func (r *memoryTournamentRepository) Create(ctx context.Context, _ SQLExecutor, t *models.Tournament) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t.ID = r.db.id()
	t.Closed = false
	t.ChampionTeamID = nil
	t.CreatedAt = time.Now().UTC()
	r.db.tournaments[t.ID] = *cloneTournament(*t)
	return nil
}

func (r *memoryTournamentRepository) GetByID(ctx context.Context, _ SQLExecutor, id int) (*models.Tournament, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return cloneTournament(t), nil
}

func (r *memoryTournamentRepository) List(ctx context.Context, _ SQLExecutor, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.Tournament, 0, len(r.db.tournaments))
	for _, t := range r.db.tournaments {
		if filter.Closed != nil && t.Closed != *filter.Closed {
			continue
		}
		out = append(out, cloneTournament(t))
	}
	slices.SortFunc(out, func(a, b *models.Tournament) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Tournament{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryTournamentRepository) Update(ctx context.Context, _ SQLExecutor, t *models.Tournament) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.tournaments[t.ID]
	if !ok {
		return ErrTournamentNotFound
	}
	updated := cloneTournament(*t)
	updated.Closed = current.Closed
	updated.ChampionTeamID = current.ChampionTeamID
	updated.CreatedAt = current.CreatedAt
	r.db.tournaments[t.ID] = *updated
	return nil
}

func (r *memoryTournamentRepository) Delete(ctx context.Context, _ SQLExecutor, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.tournaments[id]; !ok {
		return ErrTournamentNotFound
	}
	delete(r.db.tournaments, id)

	teamIDs := make(map[int]bool)
	for tid, team := range r.db.teams {
		if team.TournamentID == id {
			teamIDs[tid] = true
			delete(r.db.teams, tid)
		}
	}
	for mid, m := range r.db.members {
		if teamIDs[m.TeamID] {
			delete(r.db.members, mid)
		}
	}
	roundIDs := make(map[int]bool)
	for rid, rd := range r.db.rounds {
		if rd.TournamentID == id {
			roundIDs[rid] = true
			delete(r.db.rounds, rid)
		}
	}
	for roomID, room := range r.db.rooms {
		if roundIDs[room.RoundID] {
			delete(r.db.rooms, roomID)
		}
	}
	partIDs := make(map[int]bool)
	for pid, p := range r.db.participations {
		if roundIDs[p.RoundID] {
			partIDs[pid] = true
			delete(r.db.participations, pid)
		}
	}
	for resID, res := range r.db.results {
		if partIDs[res.ParticipationID] {
			delete(r.db.results, resID)
		}
	}
	return nil
}

func (r *memoryTournamentRepository) SetChampion(ctx context.Context, _ SQLExecutor, tournamentID, teamID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.tournaments[tournamentID]
	if !ok {
		return ErrTournamentNotFound
	}
	if _, ok := r.db.teams[teamID]; !ok {
		return ErrTeamNotFound
	}
	t.ChampionTeamID = &teamID
	t.Closed = true
	r.db.tournaments[tournamentID] = t
	return nil
}

// --- teams ---

type memoryTeamRepository struct {
	db *memoryDB
}

func (r *memoryTeamRepository) Create(ctx context.Context, _ SQLExecutor, team *models.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.tournaments[team.TournamentID]; !ok {
		return ErrTournamentNotFound
	}
	maxSeq := 0
	for _, t := range r.db.teams {
		if t.TournamentID == team.TournamentID {
			maxSeq = max(maxSeq, t.Seq)
		}
	}

	team.ID = r.db.id()
	team.Seq = maxSeq + 1
	team.Points = 0
	team.SpeakerTotal = 0
	team.SpeakerAverage = 0
	team.CreatedAt = time.Now().UTC()

	stored := *team
	stored.Members = nil
	r.db.teams[team.ID] = stored
	return nil
}

func (r *memoryTeamRepository) GetByID(ctx context.Context, _ SQLExecutor, id int) (*models.Team, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return &t, nil
}

func (r *memoryTeamRepository) ListByTournament(ctx context.Context, _ SQLExecutor, tournamentID int) ([]*models.Team, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	teams := make([]*models.Team, 0)
	for _, t := range r.db.teams {
		if t.TournamentID == tournamentID {
			team := t
			teams = append(teams, &team)
		}
	}
	slices.SortFunc(teams, func(a, b *models.Team) int { return cmp.Compare(a.Seq, b.Seq) })
	return teams, nil
}

func (r *memoryTeamRepository) DeleteNonSwing(ctx context.Context, _ SQLExecutor, tournamentID int) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var deleted int64
	removed := make(map[int]bool)
	for id, t := range r.db.teams {
		if t.TournamentID == tournamentID && !t.IsSwing {
			removed[id] = true
			delete(r.db.teams, id)
			deleted++
		}
	}
	for id, m := range r.db.members {
		if removed[m.TeamID] {
			delete(r.db.members, id)
		}
	}
	return deleted, nil
}

func (r *memoryTeamRepository) ApplyRoundTotals(ctx context.Context, _ SQLExecutor, teamID, pointsDelta, speakerDelta int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.teams[teamID]
	if !ok {
		return ErrTeamNotFound
	}
	t.Points += pointsDelta
	t.SpeakerTotal += speakerDelta
	r.db.teams[teamID] = t
	return nil
}

func (r *memoryTeamRepository) UpdateSpeakerAverage(ctx context.Context, _ SQLExecutor, teamID int, average float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.teams[teamID]
	if !ok {
		return ErrTeamNotFound
	}
	t.SpeakerAverage = average
	r.db.teams[teamID] = t
	return nil
}

func (r *memoryTeamRepository) CreateMember(ctx context.Context, _ SQLExecutor, member *models.Member) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.teams[member.TeamID]; !ok {
		return ErrTeamNotFound
	}
	member.ID = r.db.id()
	r.db.members[member.ID] = *member
	return nil
}

func (r *memoryTeamRepository) ListMembersByTournament(ctx context.Context, _ SQLExecutor, tournamentID int) (map[int][]models.Member, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(r.db.members))
	out := make(map[int][]models.Member)
	for _, id := range ids {
		m := r.db.members[id]
		if t, ok := r.db.teams[m.TeamID]; ok && t.TournamentID == tournamentID {
			out[m.TeamID] = append(out[m.TeamID], m)
		}
	}
	return out, nil
}

// --- rounds ---

type memoryRoundRepository struct {
	db *memoryDB
}

func (r *memoryRoundRepository) Create(ctx context.Context, _ SQLExecutor, round *models.Round) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.tournaments[round.TournamentID]; !ok {
		return ErrTournamentNotFound
	}
	for _, rd := range r.db.rounds {
		if rd.TournamentID == round.TournamentID && rd.Number == round.Number {
			return ErrRoundNumberConflict
		}
	}
	round.ID = r.db.id()
	round.CreatedAt = time.Now().UTC()
	r.db.rounds[round.ID] = *round
	return nil
}

func (r *memoryRoundRepository) GetByID(ctx context.Context, _ SQLExecutor, id int) (*models.Round, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rd, ok := r.db.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	return &rd, nil
}

func (r *memoryRoundRepository) GetByNumber(ctx context.Context, _ SQLExecutor, tournamentID, number int) (*models.Round, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, rd := range r.db.rounds {
		if rd.TournamentID == tournamentID && rd.Number == number {
			return &rd, nil
		}
	}
	return nil, ErrRoundNotFound
}

func (r *memoryRoundRepository) ListByTournament(ctx context.Context, _ SQLExecutor, tournamentID int) ([]*models.Round, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rounds := make([]*models.Round, 0)
	for _, rd := range r.db.rounds {
		if rd.TournamentID == tournamentID {
			round := rd
			rounds = append(rounds, &round)
		}
	}
	slices.SortFunc(rounds, func(a, b *models.Round) int { return cmp.Compare(a.Number, b.Number) })
	return rounds, nil
}

func (r *memoryRoundRepository) UpdateFlags(ctx context.Context, _ SQLExecutor, id int, paired, closed bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rd, ok := r.db.rounds[id]
	if !ok {
		return ErrRoundNotFound
	}
	rd.Paired = paired
	rd.Closed = closed
	r.db.rounds[id] = rd
	return nil
}

// --- rooms ---

type memoryRoomRepository struct {
	db *memoryDB
}

func (r *memoryRoomRepository) CreateRoom(ctx context.Context, _ SQLExecutor, room *models.Room) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.rounds[room.RoundID]; !ok {
		return ErrRoundNotFound
	}
	for _, existing := range r.db.rooms {
		if existing.RoundID == room.RoundID && existing.Ordinal == room.Ordinal {
			return ErrRoomOrdinalConflict
		}
	}
	room.ID = r.db.id()
	stored := *room
	stored.Participations = nil
	r.db.rooms[room.ID] = stored
	return nil
}

func (r *memoryRoomRepository) CreateParticipation(ctx context.Context, _ SQLExecutor, p *models.Participation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	room, ok := r.db.rooms[p.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.RoundID != p.RoundID {
		return ErrRoundNotFound
	}
	if _, ok := r.db.teams[p.TeamID]; !ok {
		return ErrTeamNotFound
	}
	for _, existing := range r.db.participations {
		if existing.RoomID == p.RoomID && existing.Position == p.Position {
			return ErrPositionTaken
		}
		if existing.RoundID == p.RoundID && existing.TeamID == p.TeamID {
			return ErrTeamAlreadySeated
		}
	}
	p.ID = r.db.id()
	stored := *p
	stored.Team = nil
	stored.Result = nil
	r.db.participations[p.ID] = stored
	return nil
}

func (r *memoryRoomRepository) ListByRound(ctx context.Context, _ SQLExecutor, roundID int) ([]*models.Room, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rooms := make([]*models.Room, 0)
	byID := make(map[int]*models.Room)
	for _, room := range r.db.rooms {
		if room.RoundID == roundID {
			rm := room
			rm.Participations = make([]*models.Participation, 0, 4)
			rooms = append(rooms, &rm)
			byID[rm.ID] = &rm
		}
	}
	for _, p := range r.db.participations {
		if room, ok := byID[p.RoomID]; ok {
			part := p
			room.Participations = append(room.Participations, &part)
		}
	}
	slices.SortFunc(rooms, func(a, b *models.Room) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
	for _, room := range rooms {
		sortByBench(room.Participations)
	}
	return rooms, nil
}

func (r *memoryRoomRepository) CountByRound(ctx context.Context, _ SQLExecutor, roundID int) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	count := 0
	for _, room := range r.db.rooms {
		if room.RoundID == roundID {
			count++
		}
	}
	return count, nil
}

// --- results ---

type memoryResultRepository struct {
	db *memoryDB
}

func (r *memoryResultRepository) Upsert(ctx context.Context, _ SQLExecutor, res *models.Result) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.participations[res.ParticipationID]; !ok {
		return ErrParticipationNotFound
	}
	for id, existing := range r.db.results {
		if existing.ParticipationID == res.ParticipationID {
			res.ID = id
			r.db.results[id] = storedResult(res)
			return nil
		}
	}
	res.ID = r.db.id()
	r.db.results[res.ID] = storedResult(res)
	return nil
}

func storedResult(res *models.Result) models.Result {
	stored := *res
	stored.TeamID = 0
	stored.RoomID = 0
	return stored
}

func (r *memoryResultRepository) ListByRound(ctx context.Context, _ SQLExecutor, roundID int) ([]*models.Result, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	results := make([]*models.Result, 0)
	for _, res := range r.db.results {
		p, ok := r.db.participations[res.ParticipationID]
		if !ok || p.RoundID != roundID {
			continue
		}
		out := res
		out.TeamID = p.TeamID
		out.RoomID = p.RoomID
		results = append(results, &out)
	}
	slices.SortFunc(results, func(a, b *models.Result) int {
		if c := cmp.Compare(a.RoomID, b.RoomID); c != 0 {
			return c
		}
		return cmp.Compare(a.Rank, b.Rank)
	})
	return results, nil
}

func (r *memoryResultRepository) CountMissingByRound(ctx context.Context, _ SQLExecutor, roundID int) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	withResult := make(map[int]bool, len(r.db.results))
	for _, res := range r.db.results {
		withResult[res.ParticipationID] = true
	}
	missing := 0
	for id, p := range r.db.participations {
		if p.RoundID == roundID && !withResult[id] {
			missing++
		}
	}
	return missing, nil
}

func (r *memoryResultRepository) CountByTeams(ctx context.Context, _ SQLExecutor, teamIDs []int) (map[int]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	wanted := make(map[int]bool, len(teamIDs))
	for _, id := range teamIDs {
		wanted[id] = true
	}
	counts := make(map[int]int, len(teamIDs))
	for _, res := range r.db.results {
		p, ok := r.db.participations[res.ParticipationID]
		if ok && wanted[p.TeamID] {
			counts[p.TeamID]++
		}
	}
	return counts, nil
}
