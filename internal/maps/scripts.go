package maps

// The scripts below run inside the rendered map page. Each returns a value
// so results decode uniformly.

const feedSelector = `div[role="feed"]`

const detailSelector = `h1`

// consentScript clicks the consent dialog's accept button when present.
const consentScript = `(() => {
  const labels = ["tout accepter", "accept all", "alles accepteren", "alle akzeptieren", "accepter tout"];
  const buttons = Array.from(document.querySelectorAll("button, input[type=submit]"));
  const hit = buttons.find(b => labels.includes((b.innerText || b.value || "").trim().toLowerCase()));
  if (hit) { hit.click(); return true; }
  return false;
})()`

// resultsScript lists place links currently in the feed and whether the
// end-of-list marker is shown. A direct place page yields its own URL.
const resultsScript = `(() => {
  const links = Array.from(document.querySelectorAll('div[role="feed"] a[href*="/maps/place/"]'))
    .map(a => a.href);
  if (links.length === 0 && location.pathname.includes("/maps/place/")) {
    links.push(location.href);
  }
  const text = (document.querySelector('div[role="feed"]') || document.body).innerText || "";
  const end = /fin de la liste|end of the list|einde van de lijst/i.test(text);
  return { links: Array.from(new Set(links)), end };
})()`

// detailScript reads the place pane.
const detailScript = `(() => {
  const pick = (sel) => { const el = document.querySelector(sel); return el ? (el.innerText || "").trim() : ""; };
  const attr = (sel, name) => { const el = document.querySelector(sel); return el ? (el.getAttribute(name) || "") : ""; };
  const item = (id) => {
    const el = document.querySelector('[data-item-id="' + id + '"]');
    return el ? (el.getAttribute("aria-label") || el.innerText || "").replace(/^[^:]*:\s*/, "").trim() : "";
  };
  const phoneEl = document.querySelector('[data-item-id^="phone:"]');
  return {
    name: pick("h1"),
    rating: pick('div.F7nice span[aria-hidden="true"]'),
    reviews: attr('div.F7nice span[aria-label*="avis"], div.F7nice span[aria-label*="review"]', "aria-label") || pick("div.F7nice span:last-child"),
    category: pick("button.DkEaL"),
    address: item("address"),
    phone: phoneEl ? (phoneEl.getAttribute("aria-label") || phoneEl.innerText || "").replace(/^[^:]*:\s*/, "").trim() : "",
    website: attr('a[data-item-id="authority"]', "href"),
    url: location.href
  };
})()`
