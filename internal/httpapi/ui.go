package httpapi

// authPage is the browser UI served at the root path. It drives the JSON
// endpoints with fetch and keeps the issued token in the session cookie set
// by the verify-2fa response.
const authPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authgate</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 26rem; margin: 4rem auto; padding: 0 1rem; }
  fieldset { border: 1px solid #ccc; border-radius: 6px; margin-bottom: 1.5rem; }
  label { display: block; margin: .5rem 0 .15rem; }
  input { width: 100%; padding: .4rem; box-sizing: border-box; }
  button { margin-top: .75rem; padding: .45rem 1.1rem; }
  #status { white-space: pre-wrap; font-family: monospace; color: #333; }
</style>
</head>
<body>
<h1>Authgate</h1>

<fieldset>
  <legend>Sign up</legend>
  <label for="su-email">Email</label>
  <input id="su-email" type="email" autocomplete="email">
  <label for="su-password">Password</label>
  <input id="su-password" type="password" autocomplete="new-password">
  <button onclick="signup()">Sign up</button>
</fieldset>

<fieldset>
  <legend>Log in</legend>
  <label for="li-email">Email</label>
  <input id="li-email" type="email" autocomplete="email">
  <label for="li-password">Password</label>
  <input id="li-password" type="password" autocomplete="current-password">
  <button onclick="login()">Log in</button>
  <label for="li-code">2FA code</label>
  <input id="li-code" inputmode="numeric" autocomplete="one-time-code">
  <button onclick="verify2FA()">Verify code</button>
</fieldset>

<fieldset>
  <legend>Session</legend>
  <button onclick="logout()">Log out</button>
</fieldset>

<p id="status"></p>

<script>
let attemptID = "";

async function call(path, body) {
  const res = await fetch(path, {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify(body),
  });
  const data = await res.json().catch(() => ({}));
  document.getElementById("status").textContent =
    res.status + " " + JSON.stringify(data, null, 2);
  return { res, data };
}

async function signup() {
  await call("/signup", {
    email: document.getElementById("su-email").value,
    password: document.getElementById("su-password").value,
  });
}

async function login() {
  const { res, data } = await call("/login", {
    email: document.getElementById("li-email").value,
    password: document.getElementById("li-password").value,
  });
  if (res.ok) attemptID = data.attempt_id;
}

async function verify2FA() {
  await call("/verify-2fa", {
    attempt_id: attemptID,
    code: document.getElementById("li-code").value,
  });
}

async function logout() {
  await call("/logout", {});
}
</script>
</body>
</html>
`
