package redis

const (
	// acquireLockScript atomically claims a recalculation lock: it fails
	// without writing anything when the lock key already exists.
	acquireLockScript = `
local lock_key = KEYS[1]      -- attendtrack:lock:{registerID}:{userID}
local locks_set = KEYS[2]     -- attendtrack:locks

if redis.call('EXISTS', lock_key) == 1 then
  return 0
end

redis.call('HSET', lock_key,
  'register_id', ARGV[1],
  'user_id', ARGV[2],
  'owner', ARGV[3],
  'acquired_at', ARGV[4]
)
redis.call('SADD', locks_set, lock_key)

return 1
`

	// replaceAggregatesScript atomically swaps a user's aggregate rows:
	// every stale row is deleted and the new set inserted in one call.
	// ARGV is a packed row list: nrows, then per row the hash key, the
	// field count, and the field/value pairs.
	replaceAggregatesScript = `
local user_set = KEYS[1]      -- attendtrack:aggregates:{registerID}:{userID}
local register_set = KEYS[2]  -- attendtrack:aggregates:register:{registerID}

local stale = redis.call('SMEMBERS', user_set)
for _, key in ipairs(stale) do
  redis.call('DEL', key)
  redis.call('SREM', register_set, key)
end
redis.call('DEL', user_set)

local i = 1
local nrows = tonumber(ARGV[i]); i = i + 1
for r = 1, nrows do
  local key = ARGV[i]; i = i + 1
  local nfields = tonumber(ARGV[i]); i = i + 1
  local fields = {}
  for f = 1, nfields * 2 do
    fields[f] = ARGV[i]; i = i + 1
  end
  redis.call('HSET', key, unpack(fields))
  redis.call('SADD', user_set, key)
  redis.call('SADD', register_set, key)
end

return 'OK'
`
)
