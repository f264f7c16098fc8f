package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/linguamatch/match-worker/internal/domain"
)

// FindAndReserveMatch atomically picks a candidate for the seeker and
// reserves the pair. Two indivisible steps run against Redis:
//
//  1. Scan the waiting list in insertion order and return the first
//     candidate passing the prefilter (same language, fluency within 2).
//     Nothing is returned if the seeker themselves left the list.
//  2. Verify both IDs are still listed, then remove both and delete both
//     searching sentinels in the same script.
//
// The prefilter is deliberately wider than base compatibility: it covers
// the loosest criteria the relaxation schedule can produce, and the caller
// re-checks full compatibility after the reservation. On a failed final
// check the pair stays removed; re-enqueueing is the retry path's job.
//
// Returns (user, true) with the reserved candidate, or (zero, false) when
// no candidate exists or another worker won the race.
func (s *Store) FindAndReserveMatch(ctx context.Context, seeker domain.User) (domain.User, bool, error) {
	seekerID := strconv.FormatInt(seeker.UserID, 10)

	res, err := s.findScript.Run(ctx, s.rdb,
		[]string{keyWaiting},
		seekerID, seeker.Criteria.Language, seeker.Criteria.Fluency, keyCriteriaPrefix,
	).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("queue: find candidate for %d: %w", seeker.UserID, err)
	}

	candidateID, ok := res.(string)
	if !ok || candidateID == "" {
		return domain.User{}, false, nil
	}

	reserved, err := s.reserveScript.Run(ctx, s.rdb,
		[]string{keyWaiting},
		seekerID, candidateID, keySearchingPrefix,
	).Int()
	if err != nil {
		return domain.User{}, false, fmt.Errorf("queue: reserve pair %s/%s: %w", seekerID, candidateID, err)
	}
	if reserved != 1 {
		// Another worker took one of the pair between the two steps.
		return domain.User{}, false, nil
	}

	id, err := strconv.ParseInt(candidateID, 10, 64)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("queue: bad candidate id %q: %w", candidateID, err)
	}

	candidate, err := s.FindByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		// The candidate's record expired while listed. The reservation
		// already removed both users; put the seeker back so their search
		// continues.
		if err := s.AddToQueue(ctx, seeker); err != nil && !errors.Is(err, domain.ErrAlreadyInSearch) {
			return domain.User{}, false, err
		}
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return candidate, true, nil
}

// findCandidateLua scans the waiting list in FIFO order and returns the
// first id whose criteria pass the prefilter. Returns false when the
// seeker is not listed or no candidate qualifies.
const findCandidateLua = `
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local seeker = ARGV[1]
local lang = ARGV[2]
local fluency = tonumber(ARGV[3])
local prefix = ARGV[4]

local listed = false
for _, id in ipairs(ids) do
    if id == seeker then
        listed = true
        break
    end
end
if not listed then return false end

for _, id in ipairs(ids) do
    if id ~= seeker then
        local clang = redis.call('HGET', prefix .. id, 'language')
        local cfluency = redis.call('HGET', prefix .. id, 'fluency')
        if clang and cfluency and clang == lang then
            if math.abs(tonumber(cfluency) - fluency) <= 2 then
                return id
            end
        end
    end
end
return false
`

// reservePairLua removes both users from the waiting list and deletes both
// searching sentinels, but only if both are still listed. Returns 1 on
// success, 0 if either user is gone.
const reservePairLua = `
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local a = ARGV[1]
local b = ARGV[2]
local prefix = ARGV[3]

local founda = false
local foundb = false
for _, id in ipairs(ids) do
    if id == a then founda = true end
    if id == b then foundb = true end
end
if not (founda and foundb) then return 0 end

redis.call('LREM', KEYS[1], 0, a)
redis.call('LREM', KEYS[1], 0, b)
redis.call('DEL', prefix .. a)
redis.call('DEL', prefix .. b)
return 1
`
